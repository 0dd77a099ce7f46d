package status

// Status labels a pipeline state transition for a single item. The same
// values are used as state-machine labels internally and as wire values
// on the event stream.
type Status string

const (
	Pending          Status = "Pending"
	Searching        Status = "Searching"
	Downloading      Status = "Downloading"
	CheckingRemote   Status = "Checking-Remote"
	Uploading        Status = "Uploading"
	Assigning        Status = "Assigning"
	Success          Status = "Success"
	Uploaded         Status = "Uploaded"
	Assigned         Status = "Assigned"
	Failed           Status = "Failed"
	Skipped          Status = "Skipped"
	SkippedDuplicate Status = "Skipped-Duplicate"
	NoImageFound     Status = "No-Image-Found"
)

// String implements fmt.Stringer for logging.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further processing occurs for an item
// after this status.
func (s Status) Terminal() bool {
	switch s {
	case Success, Uploaded, Assigned, Failed, Skipped, SkippedDuplicate, NoImageFound:
		return true
	}
	return false
}

// TerminalSuccess reports whether the status is a successful terminal
// outcome: the item has a downloaded image, possibly published remotely.
func (s Status) TerminalSuccess() bool {
	switch s {
	case Success, Uploaded, Assigned:
		return true
	}
	return false
}

// Event is a single state transition on the stream. Events are produced
// in processing order, consumed by the transport layer, and never
// persisted or retracted.
type Event struct {
	SKU     string `json:"sku"`
	Name    string `json:"name,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Score   int    `json:"score,omitempty"`
	URL     string `json:"url,omitempty"`
	File    string `json:"file,omitempty"`
}
