package container

import (
	"encoding/binary"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// maxStringAttribute keeps a string attribute inside one header message.
const maxStringAttribute = 60000

// SetAttribute stores a numeric attribute on the object at path. value is a
// Go numeric scalar (int8 through uint64, float32, float64) or a slice of one,
// stored as a 1-D array. Existing numeric attributes are overwritten.
func (c *Container) SetAttribute(path, name string, value any) error {
	t, isSlice, err := goElementType(value)
	if err != nil {
		return fmt.Errorf("attribute %s@%s: %w", path, name, err)
	}
	data, err := binary.Append(nil, binary.LittleEndian, value)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("%w: empty attribute array", ErrInvalidShape)
	}
	if err != nil {
		return fmt.Errorf("attribute %s@%s: %w", path, name, err)
	}
	ds := message.NewScalarDataspace()
	if isSlice {
		ds = message.NewSimpleDataspace(uint64(len(data) / int(t.size)))
	}
	return c.putAttribute(path, &message.Attribute{Name: name, Datatype: t.datatype(), Dataspace: ds, Data: data})
}

// SetStringAttribute stores a write-once string attribute. Setting a name
// that already exists returns ErrAttributeImmutable and keeps the original.
func (c *Container) SetStringAttribute(path, name, value string) error {
	if len(value) > maxStringAttribute {
		return fmt.Errorf("attribute %s@%s: %w: string of %d bytes", path, name, ErrInvalidShape, len(value))
	}
	data := make([]byte, len(value)+1)
	copy(data, value)
	return c.putAttribute(path, &message.Attribute{
		Name:      name,
		Datatype:  message.NewString(uint32(len(data))),
		Dataspace: message.NewScalarDataspace(),
		Data:      data,
	})
}

func (c *Container) putAttribute(path string, a *message.Attribute) error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty attribute name on %s", ErrInvalidPath, path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	o, err := c.lookup(path)
	if err != nil {
		return err
	}
	if o.kept {
		return fmt.Errorf("%w: attributes on uninterpreted object %s", ErrUnsupported, o.path)
	}
	existing, i := o.attr(a.Name)
	switch {
	case existing == nil:
		o.attrs = append(o.attrs, a)
	case existing.Datatype.Class == message.ClassString || a.Datatype.Class == message.ClassString:
		return fmt.Errorf("%w: %s@%s", ErrAttributeImmutable, o.path, a.Name)
	default:
		o.attrs[i] = a
	}
	return nil
}

// Attribute returns the decoded value of an attribute: a string, a numeric
// scalar, or a slice for array attributes.
func (c *Container) Attribute(path, name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	o, err := c.lookup(path)
	if err != nil {
		return nil, err
	}
	a, _ := o.attr(name)
	if a == nil {
		return nil, fmt.Errorf("%w: attribute %s@%s", ErrNotFound, o.path, name)
	}
	t, err := elementTypeOf(a.Datatype)
	if err != nil {
		return nil, fmt.Errorf("attribute %s@%s: %w", o.path, name, err)
	}
	return decodeValue(t, a.Data, a.Dataspace.IsScalar())
}

// AttributeNames lists the attributes of the object at path in creation order.
func (c *Container) AttributeNames(path string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	o, err := c.lookup(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(o.attrs))
	for i, a := range o.attrs {
		names[i] = a.Name
	}
	return names, nil
}
