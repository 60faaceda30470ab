package tooling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

// Skills exposes the read-only global skills tree: list_global_skills,
// read_global_skill (spec section 4.6).
type Skills struct {
	root string
}

// NewSkills roots the skills view at a shared global skills/ directory.
func NewSkills(root string) *Skills {
	return &Skills{root: filepath.Clean(root)}
}

// ListGlobalSkills implements list_global_skills.
func (s *Skills) ListGlobalSkills(json.RawMessage) (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "(no skills)", nil
		}
		return "", apperr.Wrap(apperr.KindIO, "list skills", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return strings.Join(names, "\n"), nil
}

type readGlobalSkillArgs struct {
	Name string `json:"name"`
}

// ReadGlobalSkill implements read_global_skill. Skill names are
// validated to reject path traversal: no separators, no "..".
func (s *Skills) ReadGlobalSkill(argsJSON json.RawMessage) (string, error) {
	var args readGlobalSkillArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "read_global_skill arguments", err)
	}
	if err := validateSkillName(args.Name); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, args.Name, "SKILL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "skill not found: "+args.Name, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "read skill "+args.Name, err)
	}
	return string(data), nil
}

func validateSkillName(name string) error {
	if name == "" || name == "." || name == ".." {
		return apperr.New(apperr.KindBlocked, "invalid skill name: "+name)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return apperr.New(apperr.KindBlocked, "skill name must not contain path separators: "+name)
	}
	return nil
}
