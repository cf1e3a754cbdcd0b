package model

import "time"

// Message represents a single email message pulled from a mail store or an
// mbox archive.
type Message struct {
	UID        uint32
	Folder     string
	ID         string
	Subject    string
	To         []string
	ReceivedAt time.Time
	Raw        []byte
}
