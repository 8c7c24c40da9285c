package imap

import "reflect"

// FlagSet represents the action to take on a flag
type FlagSet int

const (
	FlagUnset FlagSet = iota
	FlagAdd
	FlagRemove
)

// Flags represents standard IMAP message flags
type Flags struct {
	Seen     FlagSet
	Answered FlagSet
	Flagged  FlagSet
	Deleted  FlagSet
	Draft    FlagSet
	Keywords map[string]bool
}

// lists splits a Flags value into the system flags and keywords to add and
// those to remove.
func (f Flags) lists() (add, remove []string) {
	v := reflect.ValueOf(f)
	t := reflect.TypeOf(f)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if field.Type == reflect.TypeOf(FlagUnset) {
			switch FlagSet(value.Int()) {
			case FlagAdd:
				add = append(add, `\`+field.Name)
			case FlagRemove:
				remove = append(remove, `\`+field.Name)
			}
		}
	}

	for keyword, state := range f.Keywords {
		if state {
			add = append(add, keyword)
		} else {
			remove = append(remove, keyword)
		}
	}

	return add, remove
}
