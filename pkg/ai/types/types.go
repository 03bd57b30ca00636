// Package types holds the fulfillment payload shapes exchanged between the
// resolver, the I/O manager and the drivers.
package types

// Fulfillment is the resolved response payload delivered to a user. The I/O
// manager treats it as opaque except for the recognized control fields on
// Payload.
type Fulfillment struct {
	Text    string  `json:"text,omitempty"`
	Payload Payload `json:"payload,omitempty"`
}

// Payload carries structured response objects. Drivers render the fields
// they support and ignore the rest.
type Payload struct {
	// HandledByGenerator means an external streaming generator already
	// delivered this output directly; driver dispatch is skipped.
	HandledByGenerator bool `json:"handled_by_generator,omitempty"`

	Language     string            `json:"language,omitempty"`
	IncludeVoice bool              `json:"include_voice,omitempty"`
	URL          string            `json:"url,omitempty"`
	Image        *Media            `json:"image,omitempty"`
	Audio        *Media            `json:"audio,omitempty"`
	Video        *Media            `json:"video,omitempty"`
	Document     *Media            `json:"document,omitempty"`
	Replies      []string          `json:"replies,omitempty"`
	Error        *ErrorPayload     `json:"error,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// Media points at a remote media object by URI.
type Media struct {
	URI string `json:"uri"`
}

// ErrorPayload is an error rendered through the normal driver output path.
type ErrorPayload struct {
	Message string `json:"message"`
}

// IsEmpty reports whether the fulfillment carries nothing to deliver.
func (f *Fulfillment) IsEmpty() bool {
	if f == nil {
		return true
	}

	p := f.Payload
	return f.Text == "" && p.URL == "" && p.Image == nil && p.Audio == nil &&
		p.Video == nil && p.Document == nil && p.Error == nil && len(p.Replies) == 0
}

// ErrorFulfillment wraps an error into a fulfillment that can still be routed
// through a driver, so the user receives a response on resolver failure.
func ErrorFulfillment(err error) *Fulfillment {
	message := "something went wrong"
	if err != nil {
		message = err.Error()
	}

	return &Fulfillment{
		Payload: Payload{Error: &ErrorPayload{Message: message}},
	}
}
