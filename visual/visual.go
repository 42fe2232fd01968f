// Package visual defines the drawable primitives a module hands to the
// renderer: placed images and line segments.
//
// Objects travel between a module and the host as adjacently tagged JSON:
//
//	{"type":"ImageObject","content":{"x":0,"y":0,"rotation":0,"image":"turtle.png"}}
//	{"type":"Line","content":{"x1":0,"y1":0,"x2":10,"y2":10}}
package visual

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags used on the wire.
const (
	TypeImage = "ImageObject"
	TypeLine  = "Line"
)

var ErrUnknownType = errors.New("unknown visual object type")

// Object is a closed sum over Image and Line. The unexported method keeps
// other packages from adding variants, so a type switch over the two is
// exhaustive.
type Object interface {
	objectType() string
}

// Image places an asset centered at (X, Y), rotated by Rotation radians.
type Image struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Image    string  `json:"image"`
}

// Line is a segment from (X1, Y1) to (X2, Y2).
type Line struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (Image) objectType() string { return TypeImage }
func (Line) objectType() string  { return TypeLine }

// TypeOf returns the wire tag for o.
func TypeOf(o Object) string {
	return o.objectType()
}

type envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Encode marshals a single object in its tagged form.
func Encode(o Object) ([]byte, error) {
	if o == nil {
		return nil, errors.New("nil visual object")
	}
	content, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", o.objectType(), err)
	}
	return json.Marshal(envelope{Type: o.objectType(), Content: content})
}

// Decode parses a single tagged object.
func Decode(data []byte) (Object, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode visual object: %w", err)
	}
	return decodeEnvelope(env)
}

func decodeEnvelope(env envelope) (Object, error) {
	switch env.Type {
	case TypeImage:
		var img Image
		if err := json.Unmarshal(env.Content, &img); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return img, nil
	case TypeLine:
		var line Line
		if err := json.Unmarshal(env.Content, &line); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return line, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Frame is the ordered object list produced by one module tick.
type Frame []Object

func (f Frame) MarshalJSON() ([]byte, error) {
	envs := make([]envelope, 0, len(f))
	for i, o := range f {
		if o == nil {
			return nil, fmt.Errorf("object %d: nil visual object", i)
		}
		content, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		envs = append(envs, envelope{Type: o.objectType(), Content: content})
	}
	return json.Marshal(envs)
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var envs []envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	out := make(Frame, 0, len(envs))
	for i, env := range envs {
		o, err := decodeEnvelope(env)
		if err != nil {
			return fmt.Errorf("object %d: %w", i, err)
		}
		out = append(out, o)
	}
	*f = out
	return nil
}

// EncodeList marshals objects as a JSON array of tagged objects.
func EncodeList(objs []Object) ([]byte, error) {
	return json.Marshal(Frame(objs))
}

// DecodeList parses a JSON array of tagged objects.
func DecodeList(data []byte) ([]Object, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}
