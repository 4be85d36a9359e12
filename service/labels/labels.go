package labels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	// Every line starts with a 9 character ImageNet synset id (n01440764),
	// then a single separator, then the label.
	idWidth    = 9
	labelStart = idWidth + 1
)

var (
	ErrUnknownClass        = errors.New("unknown class")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrMalformed           = errors.New("malformed label resource")
)

// Table maps class ids to labels for one language. It is never mutated after Parse.
type Table struct {
	language string
	names    map[string]string
	ids      []string
}

func Parse(language string, r io.Reader) (Table, error) {
	t := Table{
		language: language,
		names:    map[string]string{},
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		runes := []rune(line)
		if len(runes) <= labelStart {
			return Table{}, fmt.Errorf("%w: %s line %d: %q", ErrMalformed, language, lineNo, line)
		}

		id := string(runes[:idWidth])
		if _, ok := t.names[id]; ok {
			return Table{}, fmt.Errorf("%w: %s line %d: duplicate class %s", ErrMalformed, language, lineNo, id)
		}

		t.names[id] = string(runes[labelStart:])
		t.ids = append(t.ids, id)
	}
	if err := scanner.Err(); err != nil {
		return Table{}, fmt.Errorf("reading %s labels: %w", language, err)
	}

	if len(t.ids) == 0 {
		return Table{}, fmt.Errorf("%w: %s has no labels", ErrMalformed, language)
	}

	sort.Strings(t.ids)
	return t, nil
}

func (t Table) Language() string {
	return t.language
}

func (t Table) Len() int {
	return len(t.ids)
}

func (t Table) Name(id string) (string, error) {
	name, ok := t.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %s has no label for %s", ErrUnknownClass, t.language, id)
	}
	return name, nil
}

// ClassID returns the class id at a model output index. Ids are in ascending
// synset order, which is the order the ImageNet models emit scores in.
func (t Table) ClassID(index int) (string, bool) {
	if index < 0 || index >= len(t.ids) {
		return "", false
	}
	return t.ids[index], true
}

// Set holds the tables of all supported languages. The reference table
// decides the output index to class id mapping.
type Set struct {
	reference string
	tables    map[string]Table
}

func NewSet(reference string, tables ...Table) (*Set, error) {
	set := &Set{
		reference: reference,
		tables:    map[string]Table{},
	}
	for _, t := range tables {
		set.tables[t.language] = t
	}

	if _, ok := set.tables[reference]; !ok {
		return nil, fmt.Errorf("%w: reference language %s not loaded", ErrUnsupportedLanguage, reference)
	}
	return set, nil
}

func (s *Set) Languages() []string {
	langs := make([]string, 0, len(s.tables))
	for l := range s.tables {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func (s *Set) Supports(language string) bool {
	_, ok := s.tables[language]
	return ok
}

func (s *Set) NumClasses() int {
	return s.tables[s.reference].Len()
}

func (s *Set) ClassID(index int) (string, error) {
	id, ok := s.tables[s.reference].ClassID(index)
	if !ok {
		return "", fmt.Errorf("%w: no class at index %d", ErrUnknownClass, index)
	}
	return id, nil
}

func (s *Set) Label(language, id string) (string, error) {
	t, ok := s.tables[language]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	return t.Name(id)
}
