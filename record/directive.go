package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const directivePrefix = "ARF"

var ErrInvalidDirective = errors.New("record: invalid directive")

// tokenize splits text on spaces. Double quotes group words into one token
// and are removed.
func tokenize(text string) []string {
	var (
		words   []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case r == ' ' && !quoted:
			if pending {
				words = append(words, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		words = append(words, cur.String())
	}
	return words
}

func (s *Session) hasObject(p string) bool {
	for _, f := range s.files {
		if f.HasObject(p) {
			return true
		}
	}
	return false
}

// directive executes a control message:
//
//	ARF SetAttr <name> <value>           string attribute on the current /rec_<n>
//	ARF SetAttr <object> <name> <value>  string attribute on an object, either an
//	                                     absolute path or one under /rec_<n>
//	ARF TS <timestamp> <text>            reserved, logged only
//
// An existing object under /rec_<n> named by the first word selects the
// second form when at least three words follow SetAttr. Other directives are
// logged and ignored. The caller holds rotMu.
func (s *Session) directive(text string) error {
	words := tokenize(text)
	if len(words) < 2 {
		return fmt.Errorf("%w: %q", ErrInvalidDirective, text)
	}
	switch words[1] {
	case "SetAttr":
		if len(words) < 4 {
			return fmt.Errorf("%w: SetAttr needs a name and a value: %q", ErrInvalidDirective, text)
		}
		object, name, value := ".", words[2], strings.Join(words[3:], " ")
		if strings.HasPrefix(words[2], "/") || (len(words) >= 5 && s.hasObject(words[2])) {
			if len(words) < 5 {
				return fmt.Errorf("%w: SetAttr %s needs a name and a value: %q", ErrInvalidDirective, words[2], text)
			}
			object, name, value = words[2], words[3], strings.Join(words[4:], " ")
		}
		var errs []error
		for _, f := range s.files {
			if err := f.SetObjectAttribute(object, name, value); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.Path(), err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			s.log.Warn("recording attribute not set", "object", object, "name", name, "error", err)
			return err
		}
		s.log.Info("recording attribute set", "object", object, "name", name, "value", value, "recording", s.recording)
		return nil
	case "TS":
		if len(words) < 3 {
			return fmt.Errorf("%w: TS needs a timestamp: %q", ErrInvalidDirective, text)
		}
		ts, err := strconv.ParseInt(words[2], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TS timestamp %q: %v", ErrInvalidDirective, words[2], err)
		}
		s.log.Info("timestamp directive", "timestamp", ts, "text", strings.Join(words[3:], " "))
		return nil
	}
	s.log.Warn("unknown directive ignored", "directive", words[1])
	return nil
}
