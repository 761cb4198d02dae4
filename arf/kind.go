package arf

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/container"
)

// Kind identifies one of the three container files of a recording section.
type Kind uint8

const (
	Continuous Kind = iota
	Events
	Spikes
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Events:
		return "events"
	case Spikes:
		return "spikes"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// FileName returns the file of kind k for a section base path such as
// "/data/experiment1_prt2". processor only applies to continuous files.
func (k Kind) FileName(base string, processor int) string {
	switch k {
	case Events:
		return base + "_events" + Extension
	case Spikes:
		return base + "_spikes" + Extension
	}
	return base + "_" + strconv.Itoa(processor) + Extension
}

// initStructure writes the fixed layout of a newly created file.
func (k Kind) initStructure(c *container.Container) error {
	if err := c.SetStringAttribute("/", "arf_version", Version); err != nil {
		return err
	}
	var group string
	switch k {
	case Events:
		group = eventGroup
	case Spikes:
		group = spikeGroup
	default:
		return nil
	}
	if err := c.CreateGroup(group); err != nil {
		return err
	}
	return c.SetStringAttribute(group, "uuid", uuid.NewString())
}
