package model

// Detection represents a detected object in an upload.
type Detection struct {
	ID         int64   `json:"id"`
	UploadID   int64   `json:"upload_id"`
	Label      string  `json:"label"`
	ClassID    int     `json:"class_id"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
