package script

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultMemorySize applies when a script does not set memory_size.
const DefaultMemorySize = 4

//go:embed doctor.yaml
var doctorScript []byte

// DoctorSource returns the raw YAML of the built-in DOCTOR script.
func DoctorSource() []byte {
	return bytes.Clone(doctorScript)
}

var loadDoctor = sync.OnceValues(func() (*Script, error) {
	return Parse(doctorScript)
})

// Doctor returns the built-in DOCTOR script. It is parsed once and shared.
func Doctor() (*Script, error) {
	return loadDoctor()
}

// Load reads a script from path, or returns the built-in script when path is
// empty.
func Load(path string) (*Script, error) {
	if path == "" {
		return Doctor()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", path, err)
	}
	return s, nil
}

type rawDecomposition struct {
	Pattern   string   `yaml:"pattern"`
	Templates []string `yaml:"templates"`
}

type rawRule struct {
	Keyword        string             `yaml:"keyword"`
	Rank           int                `yaml:"rank"`
	Fallback       bool               `yaml:"fallback"`
	Decompositions []rawDecomposition `yaml:"decompositions"`
	Memory         []rawDecomposition `yaml:"memory"`
}

type rawScript struct {
	Greeting     string              `yaml:"greeting"`
	Farewell     string              `yaml:"farewell"`
	Quit         []string            `yaml:"quit"`
	MemorySize   int                 `yaml:"memory_size"`
	Contractions map[string]string   `yaml:"contractions"`
	Reflections  map[string]string   `yaml:"reflections"`
	Synonyms     map[string][]string `yaml:"synonyms"`
	Rules        []rawRule           `yaml:"rules"`
}

// Parse decodes and validates a YAML script. Every failure is a
// *MalformedRuleError.
func Parse(data []byte) (*Script, error) {
	var raw rawScript
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedRuleError{Field: "yaml", Reason: "cannot decode script", Err: err}
	}
	return build(&raw)
}

func build(raw *rawScript) (*Script, error) {
	s := &Script{
		greeting:     strings.TrimSpace(raw.Greeting),
		farewell:     strings.TrimSpace(raw.Farewell),
		memorySize:   raw.MemorySize,
		quit:         make(map[string]struct{}, len(raw.Quit)),
		contractions: make(map[string][]string, len(raw.Contractions)),
		reflections:  make(map[string]string, len(raw.Reflections)),
		synonyms:     make(map[string]map[string]struct{}, len(raw.Synonyms)),
		byKeyword:    make(map[string]*Rule, len(raw.Rules)),
	}

	if s.greeting == "" {
		return nil, malformed("", "greeting", "must not be empty")
	}
	if s.farewell == "" {
		return nil, malformed("", "farewell", "must not be empty")
	}
	switch {
	case s.memorySize < 0:
		return nil, malformed("", "memory_size", "must not be negative")
	case s.memorySize == 0:
		s.memorySize = DefaultMemorySize
	}

	for _, w := range raw.Quit {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || strings.ContainsAny(w, " \t") {
			return nil, malformed("", "quit", fmt.Sprintf("quit entry %q must be a single word", w))
		}
		s.quit[w] = struct{}{}
	}

	for k, v := range raw.Contractions {
		words := strings.Fields(strings.ToLower(v))
		if len(words) == 0 {
			return nil, malformed("", "contractions", fmt.Sprintf("%q expands to nothing", k))
		}
		s.contractions[strings.ToLower(strings.TrimSpace(k))] = words
	}

	for k, v := range raw.Reflections {
		key := strings.Join(strings.Fields(strings.ToLower(k)), " ")
		if key == "" || strings.TrimSpace(v) == "" {
			return nil, malformed("", "reflections", fmt.Sprintf("entry %q -> %q is empty", k, v))
		}
		s.reflections[key] = v
		if n := len(strings.Fields(key)); n > s.reflectWidth {
			s.reflectWidth = n
		}
	}

	for name, words := range raw.Synonyms {
		name = strings.ToLower(strings.TrimSpace(name))
		if len(words) == 0 {
			return nil, malformed("", "synonyms", fmt.Sprintf("set %q is empty", name))
		}
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
		s.synonyms[name] = set
	}

	for i := range raw.Rules {
		r, err := s.buildRule(&raw.Rules[i])
		if err != nil {
			return nil, err
		}
		if _, dup := s.byKeyword[r.Keyword]; dup {
			return nil, malformed(r.Keyword, "keyword", "duplicate keyword")
		}
		if r.Fallback {
			if s.fallback != nil {
				return nil, malformed(r.Keyword, "fallback", fmt.Sprintf("%q is already the fallback rule", s.fallback.Keyword))
			}
			s.fallback = r
		}
		s.rules = append(s.rules, r)
		s.byKeyword[r.Keyword] = r
	}

	if s.fallback == nil {
		return nil, malformed("", "rules", "no fallback rule declared")
	}
	if err := s.checkFallback(); err != nil {
		return nil, err
	}
	if err := s.checkGotos(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Script) buildRule(raw *rawRule) (*Rule, error) {
	keyword := strings.ToLower(strings.TrimSpace(raw.Keyword))
	if keyword == "" {
		return nil, malformed("", "keyword", "rule without keyword")
	}
	if strings.ContainsAny(keyword, " \t") {
		return nil, malformed(keyword, "keyword", "keyword must be a single word")
	}
	if len(raw.Decompositions) == 0 {
		return nil, malformed(keyword, "decompositions", "rule has no decompositions")
	}

	r := &Rule{Keyword: keyword, Rank: raw.Rank, Fallback: raw.Fallback}
	var err error
	if r.Decompositions, err = s.buildDecompositions(keyword, "decompositions", raw.Decompositions); err != nil {
		return nil, err
	}
	if r.Memory, err = s.buildDecompositions(keyword, "memory", raw.Memory); err != nil {
		return nil, err
	}
	for i, d := range r.Memory {
		for j, t := range d.Templates {
			if t.IsGoto() {
				return nil, malformed(keyword, fmt.Sprintf("memory[%d].templates[%d]", i, j), "memory templates cannot redirect")
			}
		}
	}
	return r, nil
}

func (s *Script) buildDecompositions(keyword, field string, raws []rawDecomposition) ([]Decomposition, error) {
	out := make([]Decomposition, 0, len(raws))
	for i, rd := range raws {
		where := fmt.Sprintf("%s[%d]", field, i)
		p, err := ParsePattern(rd.Pattern)
		if err != nil {
			return nil, &MalformedRuleError{Keyword: keyword, Field: where + ".pattern", Reason: "invalid pattern", Err: err}
		}
		for _, seg := range p.Segments {
			if seg.Kind == SegmentSynonym {
				if _, ok := s.synonyms[seg.Text]; !ok {
					return nil, malformed(keyword, where+".pattern", fmt.Sprintf("unknown synonym set @%s", seg.Text))
				}
			}
		}
		if len(rd.Templates) == 0 {
			return nil, malformed(keyword, where+".templates", "no templates")
		}
		d := Decomposition{Pattern: p, Templates: make([]Template, 0, len(rd.Templates))}
		for j, src := range rd.Templates {
			t, err := ParseTemplate(src)
			if err != nil {
				return nil, &MalformedRuleError{Keyword: keyword, Field: fmt.Sprintf("%s.templates[%d]", where, j), Reason: "invalid template", Err: err}
			}
			d.Templates = append(d.Templates, t)
		}
		out = append(out, d)
	}
	return out, nil
}

// checkFallback makes sure the fallback rule can always answer: it needs a
// lone "*" decomposition and plain templates whose placeholders are bound.
func (s *Script) checkFallback() error {
	fb := s.fallback
	var catchAll bool
	for i, d := range fb.Decompositions {
		if d.Pattern.MatchesAnything() {
			catchAll = true
		}
		for j, t := range d.Templates {
			field := fmt.Sprintf("decompositions[%d].templates[%d]", i, j)
			if t.IsGoto() {
				return malformed(fb.Keyword, field, "fallback templates cannot redirect")
			}
			if t.MaxRef() > d.Pattern.Captures() {
				return malformed(fb.Keyword, field, fmt.Sprintf("placeholder {%d} exceeds %d captures", t.MaxRef(), d.Pattern.Captures()))
			}
		}
	}
	if !catchAll {
		return malformed(fb.Keyword, "decompositions", `fallback rule needs a "*" decomposition`)
	}
	return nil
}

func (s *Script) checkGotos() error {
	for _, r := range s.rules {
		for i, d := range r.Decompositions {
			for j, t := range d.Templates {
				if !t.IsGoto() {
					continue
				}
				if _, ok := s.byKeyword[t.Goto]; !ok {
					return malformed(r.Keyword, fmt.Sprintf("decompositions[%d].templates[%d]", i, j), fmt.Sprintf("goto target %q is not a keyword", t.Goto))
				}
			}
		}
	}
	return nil
}
