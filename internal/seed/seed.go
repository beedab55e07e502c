// Package seed holds the template content written to an empty tenant
// workspace. The templates ship embedded and can be replaced by a YAML
// file of the same shape.
package seed

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var embedded []byte

const dateLayout = "2006-01-02"

// EventTemplate is one calendar entry of the template set.
type EventTemplate struct {
	Date        string `yaml:"date"`
	Title       string `yaml:"title"`
	Type        string `yaml:"type"`
	Status      string `yaml:"status"`
	Owner       string `yaml:"owner"`
	Channel     string `yaml:"channel"`
	URL         string `yaml:"url"`
	Copy        string `yaml:"copy"`
	Description string `yaml:"description"`
}

type TaskTemplate struct {
	Text      string `yaml:"text"`
	Completed bool   `yaml:"completed"`
}

type IdeaTemplate struct {
	Text   string `yaml:"text"`
	Author string `yaml:"author"`
	Date   string `yaml:"date"`
}

// Templates is the full template set.
type Templates struct {
	Events []EventTemplate `yaml:"events"`
	Tasks  []TaskTemplate  `yaml:"tasks"`
	Ideas  []IdeaTemplate  `yaml:"ideas"`
}

// Load reads the templates from path, or the embedded set when path is empty.
func Load(path string) (*Templates, error) {
	data := embedded
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read seed file: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

// Parse decodes and validates a template document.
func Parse(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse seed templates: %w", err)
	}
	for i, ev := range t.Events {
		if strings.TrimSpace(ev.Title) == "" {
			return nil, fmt.Errorf("seed event %d: title is required", i)
		}
		if _, err := time.Parse(dateLayout, ev.Date); err != nil {
			return nil, fmt.Errorf("seed event %d: invalid date %q", i, ev.Date)
		}
	}
	for i, idea := range t.Ideas {
		if _, err := time.Parse(dateLayout, idea.Date); err != nil {
			return nil, fmt.Errorf("seed idea %d: invalid date %q", i, idea.Date)
		}
	}
	return &t, nil
}

// Entries converts the event templates, placing each date at local
// midnight in loc.
func (t *Templates) Entries(loc *time.Location) []domain.EntryInput {
	out := make([]domain.EntryInput, 0, len(t.Events))
	for _, ev := range t.Events {
		in := domain.EntryInput{
			Title:        ev.Title,
			ScheduledAt:  localDate(ev.Date, loc),
			Kind:         domain.EntryKind(ev.Type),
			Status:       domain.EntryStatus(ev.Status),
			Channel:      ev.Channel,
			ReferenceURL: ev.URL,
			Body:         ev.Copy,
			Description:  ev.Description,
		}
		if ev.Owner != "" {
			in.Owner = domain.StringPtr(ev.Owner)
		}
		out = append(out, in)
	}
	return out
}

func (t *Templates) TaskList() []domain.Task {
	out := make([]domain.Task, 0, len(t.Tasks))
	for _, tk := range t.Tasks {
		out = append(out, domain.Task{Text: tk.Text, Completed: tk.Completed})
	}
	return out
}

func (t *Templates) IdeaList(loc *time.Location) []domain.Idea {
	out := make([]domain.Idea, 0, len(t.Ideas))
	for _, idea := range t.Ideas {
		out = append(out, domain.Idea{Text: idea.Text, Author: idea.Author, Timestamp: localDate(idea.Date, loc)})
	}
	return out
}

func localDate(s string, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}
	}
	return d
}
