package photopipe

// EventType is the domain type for object-store notification kinds.
type EventType string

// Event type constants (typed).
const (
	EventObjectCreated EventType = "created"
	EventObjectRemoved EventType = "removed"
)

// Allowed image file extensions. Anything else is routed to rejection.
var allowedExtensions = map[string]struct{}{
	".jpeg": {},
	".png":  {},
}

// Metadata attribute names accepted by the metadata updater. These are
// also the values carried in the metadata_type message attribute.
const (
	AttrCaption      = "Caption"
	AttrDate         = "Date"
	AttrPhotographer = "Photographer"
)

// MetadataAttributes lists the attribute names the metadata subscription
// allows, in a fixed order suitable for building filter policies.
func MetadataAttributes() []string {
	return []string{AttrCaption, AttrDate, AttrPhotographer}
}

// ValidMetadataAttribute reports whether name is an updatable attribute.
func ValidMetadataAttribute(name string) bool {
	switch name {
	case AttrCaption, AttrDate, AttrPhotographer:
		return true
	}
	return false
}

// UploadEvent is one object-store notification after envelope unwrapping.
// Key is stored decoded; it is the canonical fileName for every downstream
// record.
type UploadEvent struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	EventType EventType `json:"eventType"`
}

// ImageRecord is the persisted metadata row for one accepted upload.
// FileName is the partition key; the optional attributes are patched in
// later by the metadata updater, one at a time.
type ImageRecord struct {
	FileName     string `json:"fileName" dynamodbav:"fileName"`
	Caption      string `json:"caption,omitempty" dynamodbav:"Caption,omitempty"`
	Date         string `json:"date,omitempty" dynamodbav:"Date,omitempty"`
	Photographer string `json:"photographer,omitempty" dynamodbav:"Photographer,omitempty"`
}

// RejectionRecord travels over the dead-letter path from the validation
// worker to the rejection notifier. The JSON keys are the wire format the
// notifier parses.
type RejectionRecord struct {
	FileName string `json:"file"`
	Reason   string `json:"reason"`
}

// MetadataUpdateMessage is the body of a fan-out message that patches a
// single attribute of an ImageRecord. The attribute name itself travels
// out-of-band in the metadata_type message attribute. ID is the fileName.
type MetadataUpdateMessage struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// NotificationRequest is a rendered email, ready for a Mailer. Never
// persisted.
type NotificationRequest struct {
	Recipient string
	Subject   string
	BodyHTML  string
}
