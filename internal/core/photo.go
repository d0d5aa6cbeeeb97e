package core

import (
	"fmt"
	"maps"
)

// Scale tells how channel values are stored.
type Scale int

const (
	// Linear channels hold direct intensities.
	Linear Scale = iota
	// HDR channels hold the compressed encoding of ToHDR.
	HDR
)

func (s Scale) String() string {
	switch s {
	case Linear:
		return "linear"
	case HDR:
		return "hdr"
	default:
		return fmt.Sprintf("scale(%d)", int(s))
	}
}

// Well-known tag keys.
const (
	TagName      = "Name"
	TagFilename  = "Filename"
	TagTreatment = "Treatment"
)

// Photo is an image plus the metadata that flows along the graph.
//
// A Photo owns its Image. Photos published in an operator output are never
// mutated again; a worker that needs to change one works on a Copy.
type Photo struct {
	Identity string
	Image    *Image
	Scale    Scale
	Tags     map[string]string
	Sequence int
}

// NewPhoto returns an incomplete photo with the given identity.
func NewPhoto(identity string, scale Scale) *Photo {
	return &Photo{
		Identity: identity,
		Scale:    scale,
		Tags:     make(map[string]string),
	}
}

// CreateImage allocates a black image for the photo, replacing any previous one.
func (p *Photo) CreateImage(width, height int) error {
	img, err := NewImage(width, height)
	if err != nil {
		return err
	}
	p.Image.Close()
	p.Image = img
	return nil
}

// IsComplete reports whether the photo carries pixels.
func (p *Photo) IsComplete() bool {
	return p != nil && !p.Image.Empty()
}

// Copy returns an independent owner of the same pixels and metadata.
func (p *Photo) Copy() *Photo {
	c := &Photo{
		Identity: p.Identity,
		Scale:    p.Scale,
		Tags:     maps.Clone(p.Tags),
		Sequence: p.Sequence,
	}
	if c.Tags == nil {
		c.Tags = make(map[string]string)
	}
	if p.IsComplete() {
		c.Image = p.Image.Clone()
	}
	return c
}

// Tag returns the value of key, or "" when unset.
func (p *Photo) Tag(key string) string {
	return p.Tags[key]
}

// SetTag sets key to value.
func (p *Photo) SetTag(key, value string) {
	if p.Tags == nil {
		p.Tags = make(map[string]string)
	}
	p.Tags[key] = value
}

// Close releases the pixels. The photo becomes incomplete.
func (p *Photo) Close() {
	if p == nil {
		return
	}
	p.Image.Close()
	p.Image = nil
}

func (p *Photo) String() string {
	if !p.IsComplete() {
		return fmt.Sprintf("%s (incomplete)", p.Identity)
	}
	return fmt.Sprintf("%s (%dx%d %s)", p.Identity, p.Image.Width(), p.Image.Height(), p.Scale)
}
