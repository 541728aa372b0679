package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识，对应 templates/<id>.system.txt 与 templates/<id>.user.txt
type PromptID string

const (
	PromptPlanV1    PromptID = "plan_v1"
	PromptOutlineV1 PromptID = "outline_v1"
	PromptChapterV1 PromptID = "chapter_v1"
	PromptVibeV1    PromptID = "vibe_v1"
)

// templateEntry 单个模板只编译一次，错误同样被记住
type templateEntry struct {
	once sync.Once
	tpl  einoprompt.ChatTemplate
	err  error
}

// Registry 按 PromptID 懒加载 eino ChatTemplate
type Registry struct {
	src     fs.FS
	mu      sync.Mutex
	entries map[PromptID]*templateEntry
}

// NewRegistry 使用内嵌模板
func NewRegistry() *Registry {
	return newRegistryFS(templatesFS)
}

func newRegistryFS(src fs.FS) *Registry {
	return &Registry{src: src, entries: make(map[PromptID]*templateEntry)}
}

// ChatTemplate 获取模板；system 与 user 两个文件缺一不可
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &templateEntry{}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.tpl, e.err = r.compile(id)
	})
	return e.tpl, e.err
}

func (r *Registry) compile(id PromptID) (einoprompt.ChatTemplate, error) {
	if id == "" || strings.ContainsAny(string(id), "/.") {
		return nil, fmt.Errorf("invalid prompt id %q", id)
	}
	system, err := r.read(id, "system")
	if err != nil {
		return nil, err
	}
	user, err := r.read(id, "user")
	if err != nil {
		return nil, err
	}
	return einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	), nil
}

func (r *Registry) read(id PromptID, role string) (string, error) {
	name := path.Join("templates", fmt.Sprintf("%s.%s.txt", id, role))
	b, err := fs.ReadFile(r.src, name)
	if err != nil {
		return "", fmt.Errorf("prompt %s: missing %s template: %w", id, role, err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("prompt %s: empty %s template", id, role)
	}
	return text, nil
}
