package tooling

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chrysochos/society-agent-sub001/apperr"
)

// Filesystem exposes the sandboxed file tools rooted at a single agent
// working folder (spec section 4.6). Every relative path argument is
// resolved against root and rejected if absolute or escaping.
type Filesystem struct {
	root string
}

// NewFilesystem roots a Filesystem at dir.
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{root: filepath.Clean(dir)}
}

func (fs *Filesystem) resolve(rel string) (string, error) {
	return resolveSandboxed(fs.root, rel)
}

type readFileArgs struct {
	Path string `json:"path"`
}

// ReadFile implements read_file.
func (fs *Filesystem) ReadFile(argsJSON json.RawMessage) (string, error) {
	var args readFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "read_file arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "read "+args.Path, err)
	}
	return string(data), nil
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteFile implements write_file.
func (fs *Filesystem) WriteFile(argsJSON json.RawMessage) (string, error) {
	var args writeFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "write_file arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "create parent dir for "+args.Path, err)
	}
	if err := os.WriteFile(path, []byte(args.Content), 0644); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "write "+args.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

type patchFileArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// PatchFile implements patch_file: find the exact-unique old_text and
// replace with new_text. Fails if old_text is absent or appears more
// than once.
func (fs *Filesystem) PatchFile(argsJSON json.RawMessage) (string, error) {
	var args patchFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "patch_file arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "read "+args.Path, err)
	}
	content := string(data)
	count := strings.Count(content, args.OldText)
	switch count {
	case 0:
		return "", apperr.New(apperr.KindNotFound, "old_text not found in "+args.Path)
	case 1:
		// exact match, continue
	default:
		return "", apperr.New(apperr.KindInvalidState, fmt.Sprintf("old_text is not unique in %s (%d matches)", args.Path, count))
	}
	updated := strings.Replace(content, args.OldText, args.NewText, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "write "+args.Path, err)
	}
	return "patched " + args.Path, nil
}

type pathOnlyArgs struct {
	Path string `json:"path"`
}

// ListFiles implements list_files.
func (fs *Filesystem) ListFiles(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	_ = json.Unmarshal(argsJSON, &args)
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "list "+args.Path, err)
	}
	var names []string
	for _, e := range entries {
		if isExcludedDir(e.Name()) {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	return strings.Join(names, "\n"), nil
}

// DeleteFile implements delete_file.
func (fs *Filesystem) DeleteFile(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "delete_file arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "delete "+args.Path, err)
	}
	return "deleted " + args.Path, nil
}

type moveFileArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MoveFile implements move_file.
func (fs *Filesystem) MoveFile(argsJSON json.RawMessage) (string, error) {
	var args moveFileArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "move_file arguments", err)
	}
	from, err := fs.resolve(args.From)
	if err != nil {
		return "", err
	}
	to, err := fs.resolve(args.To)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "create parent dir for "+args.To, err)
	}
	if err := os.Rename(from, to); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "move "+args.From+" to "+args.To, err)
	}
	return fmt.Sprintf("moved %s to %s", args.From, args.To), nil
}

// CreateDirectory implements create_directory.
func (fs *Filesystem) CreateDirectory(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "create_directory arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindIO, "create directory "+args.Path, err)
	}
	return "created " + args.Path, nil
}

type findFilesArgs struct {
	Pattern string `json:"pattern"`
}

// FindFiles implements find_files: a case-sensitive substring match
// against relative paths under root, skipping excluded directories.
func (fs *Filesystem) FindFiles(argsJSON json.RawMessage) (string, error) {
	var args findFilesArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "find_files arguments", err)
	}
	var matches []string
	err := filepath.WalkDir(fs.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != fs.root && isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(fs.root, path)
		if strings.Contains(rel, args.Pattern) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "find_files", err)
	}
	return strings.Join(matches, "\n"), nil
}

type searchInFilesArgs struct {
	Query string `json:"query"`
}

// SearchInFiles implements search_in_files: a grep over text files
// under root with the same exclude list as FindFiles.
func (fs *Filesystem) SearchInFiles(argsJSON json.RawMessage) (string, error) {
	var args searchInFilesArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "search_in_files arguments", err)
	}
	var hits []string
	err := filepath.WalkDir(fs.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != fs.root && isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(fs.root, path)
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if strings.Contains(scanner.Text(), args.Query) {
				hits = append(hits, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
			}
		}
		return nil
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "search_in_files", err)
	}
	return strings.Join(hits, "\n"), nil
}

// GetFileInfo implements get_file_info.
func (fs *Filesystem) GetFileInfo(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "get_file_info arguments", err)
	}
	path, err := fs.resolve(args.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "stat "+args.Path, err)
	}
	return fmt.Sprintf("%s\nsize=%d\nmode=%s\nmodTime=%s\nisDir=%t",
		args.Path, info.Size(), info.Mode(), info.ModTime(), info.IsDir()), nil
}

type compareFilesArgs struct {
	A string `json:"a"`
	B string `json:"b"`
}

// CompareFiles implements compare_files: reports whether two files are
// byte-identical, and if not, the first differing line number.
func (fs *Filesystem) CompareFiles(argsJSON json.RawMessage) (string, error) {
	var args compareFilesArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "compare_files arguments", err)
	}
	aPath, err := fs.resolve(args.A)
	if err != nil {
		return "", err
	}
	bPath, err := fs.resolve(args.B)
	if err != nil {
		return "", err
	}
	aData, err := os.ReadFile(aPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "read "+args.A, err)
	}
	bData, err := os.ReadFile(bPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "read "+args.B, err)
	}
	if string(aData) == string(bData) {
		return "identical", nil
	}
	aLines := strings.Split(string(aData), "\n")
	bLines := strings.Split(string(bData), "\n")
	for i := 0; i < len(aLines) && i < len(bLines); i++ {
		if aLines[i] != bLines[i] {
			return fmt.Sprintf("differ at line %d", i+1), nil
		}
	}
	return fmt.Sprintf("differ: %d vs %d lines", len(aLines), len(bLines)), nil
}

// ProjectView is a read-only view over a project folder used by
// read_project_file / list_project_files. It is independent of any
// single agent's sandbox root.
type ProjectView struct {
	root string
}

// NewProjectView roots a ProjectView at a project's folder.
func NewProjectView(root string) *ProjectView {
	return &ProjectView{root: filepath.Clean(root)}
}

func (pv *ProjectView) listTopLevel() []string {
	entries, err := os.ReadDir(pv.root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !isExcludedDir(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

// ReadProjectFile implements read_project_file.
func (pv *ProjectView) ReadProjectFile(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", apperr.Wrap(apperr.KindParseError, "read_project_file arguments", err)
	}
	corrected := correctProjectPath(pv.root, args.Path, func(string) []string { return pv.listTopLevel() })
	path, err := resolveSandboxed(pv.root, corrected)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperr.Wrap(apperr.KindNotFound, "file not found: "+args.Path, err)
		}
		return "", apperr.Wrap(apperr.KindIO, "read "+args.Path, err)
	}
	return string(data), nil
}

// ListProjectFiles implements list_project_files.
func (pv *ProjectView) ListProjectFiles(argsJSON json.RawMessage) (string, error) {
	var args pathOnlyArgs
	_ = json.Unmarshal(argsJSON, &args)
	corrected := correctProjectPath(pv.root, args.Path, func(string) []string { return pv.listTopLevel() })
	path, err := resolveSandboxed(pv.root, corrected)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindIO, "list "+args.Path, err)
	}
	var names []string
	for _, e := range entries {
		if isExcludedDir(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return strings.Join(names, "\n"), nil
}
