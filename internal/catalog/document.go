package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/blackwell-systems/tapline/internal/formula"
)

// formulaDoc is the wire shape of one formula in a catalog document or tap
// manifest. JSON catalogs carry an array of these; a tap manifest carries
// exactly one. Field order in the dependency and requirement arrays is the
// declaration order the resolver preserves.
type formulaDoc struct {
	Name     string `json:"name" toml:"name"`
	FullName string `json:"full_name" toml:"full_name"`
	Tap      string `json:"tap" toml:"tap"`
	Desc     string `json:"desc" toml:"desc"`
	Homepage string `json:"homepage" toml:"homepage"`

	Version  string `json:"version" toml:"version"`
	Revision int    `json:"revision" toml:"revision"`

	KegOnly       bool   `json:"keg_only" toml:"keg_only"`
	KegOnlyReason string `json:"keg_only_reason" toml:"keg_only_reason"`

	Dependencies []depDoc      `json:"dependencies" toml:"dependencies"`
	Requirements []reqDoc      `json:"requirements" toml:"requirements"`
	Conflicts    []conflictDoc `json:"conflicts" toml:"conflicts"`

	Bottles []bottleDoc `json:"bottles" toml:"bottles"`
	Source  sourceDoc   `json:"source" toml:"source"`
	Head    *headDoc    `json:"head" toml:"head"`
}

type depDoc struct {
	Name  string `json:"name" toml:"name"`
	Tag   string `json:"tag" toml:"tag"`
	Since string `json:"since" toml:"since"`
}

type reqDoc struct {
	Kind       string   `json:"kind" toml:"kind"`
	OS         string   `json:"os" toml:"os"`
	MinVersion string   `json:"min_version" toml:"min_version"`
	Arch       string   `json:"arch" toml:"arch"`
	Tool       string   `json:"tool" toml:"tool"`
	Tags       []string `json:"tags" toml:"tags"`

	// Fatal defaults to true when absent.
	Fatal *bool `json:"fatal" toml:"fatal"`
}

type conflictDoc struct {
	Name   string `json:"name" toml:"name"`
	Reason string `json:"reason" toml:"reason"`
}

type bottleDoc struct {
	OS     string `json:"os" toml:"os"`
	Arch   string `json:"arch" toml:"arch"`
	URL    string `json:"url" toml:"url"`
	SHA256 string `json:"sha256" toml:"sha256"`
}

type sourceDoc struct {
	URL    string   `json:"url" toml:"url"`
	SHA256 string   `json:"sha256" toml:"sha256"`
	Build  []string `json:"build" toml:"build"`
}

type headDoc struct {
	URL   string   `json:"url" toml:"url"`
	Build []string `json:"build" toml:"build"`
}

// decode converts a document into a validated Formula. source names the
// file the document came from and prefixes every error. tap, when non-empty,
// supplies the tap for manifests that omit it.
func (doc *formulaDoc) decode(source, tap string) (*formula.Formula, error) {
	f := &formula.Formula{
		Name:          doc.Name,
		FullName:      doc.FullName,
		Tap:           doc.Tap,
		Desc:          doc.Desc,
		Homepage:      doc.Homepage,
		Version:       doc.Version,
		Revision:      doc.Revision,
		KegOnly:       doc.KegOnly,
		KegOnlyReason: doc.KegOnlyReason,
	}
	if f.Tap == "" {
		f.Tap = tap
	}
	if f.FullName == "" && f.Tap != "" {
		f.FullName = f.Tap + "/" + f.Name
	}
	if f.FullName == "" {
		f.FullName = f.Name
	}

	for _, d := range doc.Dependencies {
		tag, err := formula.ParseTag(f.Name, d.Tag)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		f.Dependencies = append(f.Dependencies, formula.Dependency{
			Name:  d.Name,
			Tag:   tag,
			Since: d.Since,
		})
	}

	for i, r := range doc.Requirements {
		req, err := decodeRequirement(f.Name, r)
		if err != nil {
			return nil, fmt.Errorf("%s: requirement %d: %w", source, i, err)
		}
		f.Requirements = append(f.Requirements, req)
	}

	for _, c := range doc.Conflicts {
		f.Conflicts = append(f.Conflicts, formula.Conflict{Name: c.Name, Reason: c.Reason})
	}
	for _, b := range doc.Bottles {
		f.Bottles = append(f.Bottles, formula.Bottle{OS: b.OS, Arch: b.Arch, URL: b.URL, SHA256: b.SHA256})
	}
	f.Source = formula.Source{URL: doc.Source.URL, SHA256: doc.Source.SHA256, Build: doc.Source.Build}
	if doc.Head != nil {
		f.Head = &formula.Head{URL: doc.Head.URL, Build: doc.Head.Build}
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return f, nil
}

func decodeRequirement(owner string, r reqDoc) (formula.Requirement, error) {
	req := formula.Requirement{
		OS:         r.OS,
		MinVersion: r.MinVersion,
		Arch:       r.Arch,
		Tool:       r.Tool,
		Fatal:      true,
	}
	if r.Fatal != nil {
		req.Fatal = *r.Fatal
	}

	switch formula.RequirementKind(r.Kind) {
	case formula.ReqOS:
		if r.OS == "" {
			return req, fmt.Errorf("%s: os requirement without os", owner)
		}
	case formula.ReqOSVersion:
		if r.MinVersion == "" {
			return req, fmt.Errorf("%s: os_version requirement without min_version", owner)
		}
	case formula.ReqArch:
		if r.Arch == "" {
			return req, fmt.Errorf("%s: arch requirement without arch", owner)
		}
	case formula.ReqTool:
		if r.Tool == "" {
			return req, fmt.Errorf("%s: tool requirement without tool", owner)
		}
	default:
		return req, fmt.Errorf("%s: unknown requirement kind %q", owner, r.Kind)
	}
	req.Kind = formula.RequirementKind(r.Kind)

	for _, t := range r.Tags {
		tag, err := formula.ParseTag(owner, t)
		if err != nil {
			return req, err
		}
		req.Tags = append(req.Tags, tag)
	}
	return req, nil
}

// tapOf derives the tap name from a tap directory path.
func tapOf(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}
