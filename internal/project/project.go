// Package project reads and writes the YAML document the preview tool
// works on: settings, scenes, timeline clips and keyframe tracks.
package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/scenecut/internal/animation"
	"github.com/ivlev/scenecut/internal/config"
	"github.com/ivlev/scenecut/internal/scene"
	"github.com/ivlev/scenecut/internal/timeline"
)

const Version = "1.0"

// File is a complete project document.
type File struct {
	Version  string            `yaml:"version"`
	Name     string            `yaml:"name,omitempty"`
	Config   config.Config     `yaml:"config"`
	Scenes   []scene.Scene     `yaml:"scenes"`
	Timeline Timeline          `yaml:"timeline"`
	Tracks   []animation.Track `yaml:"tracks,omitempty"`
}

// Timeline holds the clip table and the saved playhead position in
// seconds. Track count and length come from Config.
type Timeline struct {
	Playhead float64         `yaml:"playhead"`
	Clips    []timeline.Clip `yaml:"clips"`
}

// New returns an empty document with one empty scene.
func New(cfg config.Config) *File {
	return &File{
		Version: Version,
		Config:  cfg,
		Scenes:  []scene.Scene{{ID: "scene-1", Name: "Scene 1"}},
	}
}

// Decode parses a document. Settings missing from it keep their defaults.
func Decode(data []byte) (*File, error) {
	f := &File{Config: config.Default()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	if f.Version == "" {
		f.Version = Version
	}
	for i := range f.Tracks {
		f.Tracks[i].Sort()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Read reads a document from a YAML file.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", path, err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Encode renders the document as YAML.
func (f *File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the document to path through a temporary file, so a failed
// write never leaves a truncated project behind.
func Write(f *File, path string) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write project %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write project %s: %w", path, err)
	}
	return nil
}

// Element finds an element in any scene.
func (f *File) Element(id string) (*scene.Element, bool) {
	for i := range f.Scenes {
		if el, ok := f.Scenes[i].Element(id); ok {
			return el, true
		}
	}
	return nil, false
}

// Validate checks the references between scenes, clips and tracks and the
// clip geometry against the timeline settings.
func (f *File) Validate() error {
	var errs []error
	if err := f.Config.Validate(); err != nil {
		errs = append(errs, err)
	}

	elements := make(map[string]bool)
	sceneIDs := make(map[string]bool)
	for _, s := range f.Scenes {
		if sceneIDs[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate scene id %q", s.ID))
		}
		sceneIDs[s.ID] = true
		for _, el := range s.Elements {
			switch {
			case el.ID == "":
				errs = append(errs, fmt.Errorf("scene %s: element without id", s.ID))
			case elements[el.ID]:
				errs = append(errs, fmt.Errorf("duplicate element id %q", el.ID))
			case !el.Type.Valid():
				errs = append(errs, fmt.Errorf("element %s: unknown type %q", el.ID, el.Type))
			}
			elements[el.ID] = true
		}
	}

	clips := make(map[string]bool)
	for _, c := range f.Timeline.Clips {
		switch {
		case clips[c.ID]:
			errs = append(errs, fmt.Errorf("duplicate clip id %q", c.ID))
		case c.StartTime < 0 || c.EndTime <= c.StartTime || c.EndTime > f.Config.Duration:
			errs = append(errs, fmt.Errorf("clip %s: invalid span %.2f-%.2f", c.ID, c.StartTime, c.EndTime))
		case c.LayerIndex < 0 || c.LayerIndex >= f.Config.TrackCount:
			errs = append(errs, fmt.Errorf("clip %s: track %d out of range", c.ID, c.LayerIndex))
		case c.ElementID != "" && !elements[c.ElementID]:
			errs = append(errs, fmt.Errorf("clip %s: unknown element %q", c.ID, c.ElementID))
		}
		clips[c.ID] = true
	}

	var probe scene.Element
	for _, tr := range f.Tracks {
		if !elements[tr.ElementID] {
			errs = append(errs, fmt.Errorf("track %s.%s: unknown element", tr.ElementID, tr.Property))
		}
		if _, ok := probe.Property(tr.Property); !ok {
			errs = append(errs, fmt.Errorf("track %s.%s: unknown property", tr.ElementID, tr.Property))
		}
	}
	return errors.Join(errs...)
}
