package filter

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/message"
)

type stage struct {
	filter   Filter
	optional bool
}

// Pipeline applies an ordered list of filters to chunk data.
type Pipeline struct {
	stages []stage
}

// NewPipeline builds a pipeline from a filter pipeline message. A nil
// message yields an empty pipeline.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for _, info := range fp.Filters {
		f, err := New(info)
		if err != nil {
			return nil, err
		}
		if f == nil {
			// Unavailable optional filter: keep the slot so mask bits line up.
			p.stages = append(p.stages, stage{optional: true})
			continue
		}
		p.stages = append(p.stages, stage{filter: f, optional: info.Flags&message.FilterOptional != 0})
	}
	return p, nil
}

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return len(p.stages) == 0 }

// Len returns the number of filters.
func (p *Pipeline) Len() int { return len(p.stages) }

// Encode runs the filters in order. An optional filter that fails is skipped
// and its bit set in the returned mask.
func (p *Pipeline) Encode(input []byte) ([]byte, uint32, error) {
	data := input
	var mask uint32
	for i, s := range p.stages {
		if s.filter == nil {
			mask |= 1 << uint(i)
			continue
		}
		out, err := s.filter.Encode(data)
		if err != nil {
			if s.optional {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, fmt.Errorf("%s encode: %w", Name(s.filter.ID()), err)
		}
		data = out
	}
	return data, mask, nil
}

// Decode reverses the pipeline, skipping filters whose bit is set in mask.
func (p *Pipeline) Decode(input []byte, mask uint32) ([]byte, error) {
	data := input
	for i := len(p.stages) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		s := p.stages[i]
		if s.filter == nil {
			return nil, fmt.Errorf("%w: optional filter %d was applied but is unavailable", ErrUnsupported, i)
		}
		out, err := s.filter.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s decode: %w", Name(s.filter.ID()), err)
		}
		data = out
	}
	return data, nil
}
