package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"proxyfeed/internal/shared/logger"
	"proxyfeed/internal/shared/types"
)

// Role 是静态代理文件的类别，每个类别对应根目录下的一个子目录。
type Role string

const (
	RoleRegular Role = "regular"
	RoleV2ray   Role = "v2ray"
)

// ErrNotFound 表示请求的文件或类别不存在。
var ErrNotFound = errors.New("proxy file not found")

// Storage 接口定义了静态代理文件的只读访问。
type Storage interface {
	Lookup(role Role, name string) (string, error)
	List(role Role) ([]string, error)
}

// FileStorage 实现了 Storage 接口，从磁盘目录读取纯文本文件。
type FileStorage struct {
	root string
	dirs map[Role]string
}

// NewFileStorage 根据 [files] 配置创建 FileStorage。
func NewFileStorage(cfg types.FilesConf) *FileStorage {
	return &FileStorage{
		root: cfg.Root,
		dirs: map[Role]string{
			RoleRegular: cfg.RegularDir,
			RoleV2ray:   cfg.V2rayDir,
		},
	}
}

// ParseRole 校验并返回类别。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRegular, RoleV2ray:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrNotFound, s)
	}
}

func (fs *FileStorage) dir(role Role) (string, error) {
	sub, ok := fs.dirs[role]
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrNotFound, role)
	}
	return filepath.Join(fs.root, sub), nil
}

// Lookup 返回名称精确匹配的文件内容；否则返回第一个 "." 之前的部分等于 name 的文件。
func (fs *FileStorage) Lookup(role Role, name string) (string, error) {
	l := logger.WithComponent("Files/Storage")

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}

	dir, err := fs.dir(role)
	if err != nil {
		return "", err
	}
	entries, err := readDir(dir)
	if err != nil {
		return "", err
	}

	var match string
	for _, e := range entries {
		if e == name {
			match = e
			break
		}
	}
	if match == "" {
		for _, e := range entries {
			if baseName(e) == name {
				match = e
				break
			}
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, role, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, match))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrNotFound, role, name)
		}
		return "", err
	}

	l.Debug().Str("role", string(role)).Str("file", match).Int("bytes", len(data)).Msg("Served proxy file.")
	return string(data), nil
}

// List 返回类别下所有文件的端点名 (文件名第一个 "." 之前的部分)。
func (fs *FileStorage) List(role Role) ([]string, error) {
	dir, err := fs.dir(role)
	if err != nil {
		return nil, err
	}
	entries, err := readDir(dir)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, baseName(e))
	}
	return names, nil
}

// readDir 返回目录中按名称排序的普通文件名。
func readDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: directory %s", ErrNotFound, dir)
		}
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// baseName 取第一个 "." 之前的部分，为空时 (如 ".hidden") 返回完整文件名。
func baseName(file string) string {
	if i := strings.IndexByte(file, '.'); i > 0 {
		return file[:i]
	}
	return file
}

// Lines 把文件内容按行拆分，去掉行尾的 "\r"，并丢弃末尾换行产生的空行。
func Lines(content string) []string {
	if content == "" {
		return []string{}
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Slice 返回前 amount 行，amount <= 0 时返回全部。
func Slice(lines []string, amount int) []string {
	if amount <= 0 || amount >= len(lines) {
		return lines
	}
	return lines[:amount]
}

// FilterPrefix 保留以 prefix 开头的行，prefix 为空时原样返回。
func FilterPrefix(lines []string, prefix string) []string {
	if prefix == "" {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			out = append(out, line)
		}
	}
	return out
}
