package process

import (
	"encoding/base64"
	"time"

	"imalink-core-go/internal/domain/photo"
)

// ProcessRequest is the JSON body of POST /v1/process. Multipart
// requests carry the same coldpreview_size as a form field and the
// bytes as the "file" part instead of file_path.
type ProcessRequest struct {
	FilePath        string `json:"file_path"`
	ColdpreviewSize *int   `json:"coldpreview_size"`
}

// PhotoEgg is the flat response schema of a successful run. Every
// field is always present; optional ones are explicit nulls.
type PhotoEgg struct {
	Hothash           string   `json:"hothash"`
	HotpreviewBase64  string   `json:"hotpreview_base64"`
	HotpreviewWidth   int      `json:"hotpreview_width"`
	HotpreviewHeight  int      `json:"hotpreview_height"`
	ColdpreviewBase64 *string  `json:"coldpreview_base64"`
	ColdpreviewWidth  *int     `json:"coldpreview_width"`
	ColdpreviewHeight *int     `json:"coldpreview_height"`
	PrimaryFilename   string   `json:"primary_filename"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	TakenAt           *string  `json:"taken_at"`
	CameraMake        *string  `json:"camera_make"`
	CameraModel       *string  `json:"camera_model"`
	GPSLatitude       *float64 `json:"gps_latitude"`
	GPSLongitude      *float64 `json:"gps_longitude"`
	HasGPS            bool     `json:"has_gps"`
	ISO               *int     `json:"iso"`
	Aperture          *float64 `json:"aperture"`
	ShutterSpeed      *string  `json:"shutter_speed"`
	FocalLength       *float64 `json:"focal_length"`
	LensModel         *string  `json:"lens_model"`
	LensMake          *string  `json:"lens_make"`
}

// ErrorResponse is the body of every failed /v1/process call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func buildEgg(record *photo.Record) *PhotoEgg {
	egg := &PhotoEgg{
		Hothash:          record.Hothash,
		HotpreviewBase64: base64.StdEncoding.EncodeToString(record.Hotpreview.Data),
		HotpreviewWidth:  record.Hotpreview.Width,
		HotpreviewHeight: record.Hotpreview.Height,
		PrimaryFilename:  record.Filename,
		Width:            record.Width,
		Height:           record.Height,
		CameraMake:       record.Meta.CameraMake,
		CameraModel:      record.Meta.CameraModel,
		ISO:              record.Settings.ISO,
		Aperture:         record.Settings.Aperture,
		ShutterSpeed:     record.Settings.ShutterSpeed,
		FocalLength:      record.Settings.FocalLength,
		LensModel:        record.Settings.LensModel,
		LensMake:         record.Settings.LensMake,
	}

	if cold := record.Coldpreview; cold != nil {
		encoded := base64.StdEncoding.EncodeToString(cold.Data)
		egg.ColdpreviewBase64 = &encoded
		egg.ColdpreviewWidth = &cold.Width
		egg.ColdpreviewHeight = &cold.Height
	}
	if t := record.Meta.TakenAt; t != nil {
		formatted := t.Format(time.RFC3339)
		egg.TakenAt = &formatted
	}
	if gps := record.Meta.GPS; gps != nil {
		egg.GPSLatitude = &gps.Latitude
		egg.GPSLongitude = &gps.Longitude
		egg.HasGPS = true
	}
	return egg
}
