package robot

import "context"

// Motor is a motor-like actuator obtained from a connected Client.
type Motor struct {
	c    *Client
	name string
}

type goForParams struct {
	Name        string  `json:"name"`
	RPM         float64 `json:"rpm"`
	Revolutions float64 `json:"revolutions"`
}

type stopParams struct {
	Name string `json:"name"`
}

// GoFor spins the motor for the given number of revolutions at the given
// speed. Negative revolutions reverse the direction. The call returns when
// the platform acknowledges completion.
func (m *Motor) GoFor(ctx context.Context, rpm, revolutions float64) error {
	return m.c.call(ctx, "motor.go_for", goForParams{
		Name:        m.name,
		RPM:         rpm,
		Revolutions: revolutions,
	}, nil)
}

// Stop halts the motor immediately.
func (m *Motor) Stop(ctx context.Context) error {
	return m.c.call(ctx, "motor.stop", stopParams{Name: m.name}, nil)
}

// Camera is a camera-like sensor obtained from a connected Client.
type Camera struct {
	c    *Client
	name string
}

type getImageParams struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

type getImageResult struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"` // base64 on the wire
}

// GetImage fetches a single encoded frame.
func (cam *Camera) GetImage(ctx context.Context, mimeType string) ([]byte, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	var res getImageResult
	err := cam.c.call(ctx, "camera.get_image", getImageParams{
		Name:     cam.name,
		MimeType: mimeType,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
