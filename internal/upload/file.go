package upload

// Status is the lifecycle state of a tracked file
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// File is a selected ledger photo. Queue entries and async completions are
// correlated by the *File pointer, never by name or position.
type File struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// TrackedFile is a queue entry for a selected file
type TrackedFile struct {
	File     *File  `json:"file"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Patch is a partial update applied to a queue entry. Nil fields are left
// untouched.
type Patch struct {
	Status   *Status
	Progress *int
	Error    *string
}

func (p Patch) apply(tf TrackedFile) TrackedFile {
	if p.Status != nil {
		tf.Status = *p.Status
	}
	if p.Progress != nil {
		tf.Progress = *p.Progress
	}
	if p.Error != nil {
		tf.Error = *p.Error
	}
	return tf
}

func uploadingPatch() Patch {
	status, progress, msg := StatusUploading, 0, ""
	return Patch{Status: &status, Progress: &progress, Error: &msg}
}

func progressPatch(progress int) Patch {
	return Patch{Progress: &progress}
}

func successPatch() Patch {
	status, progress := StatusSuccess, 100
	return Patch{Status: &status, Progress: &progress}
}

func errorPatch(msg string) Patch {
	status := StatusError
	return Patch{Status: &status, Error: &msg}
}
