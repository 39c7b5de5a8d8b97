// Package policy maintains the named-policy registry: three built-in
// policies (strict, moderate, permissive), any custom policies loaded from
// a configured directory of YAML files, and the basic-restrictive fallback
// used when an unknown name is requested. Grounded on capibara's
// security/policy_manager.py (_examples/original_source) for every rule,
// resource limit, and blocked-import/function list verbatim.
package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// validate runs the struct tags declared on model.Policy/model.ResourceLimits/
// model.Rule (validate:"required", validate:"min=...,max=...", etc.) when
// custom policies are loaded; no other package uses this instance.
var validate = validator.New()

// Store is the in-memory registry of named policies. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	policies map[string]*model.Policy
	def      string
	log      *slog.Logger
}

// NewStore builds a Store preloaded with the three built-in policies and,
// if customDir is non-empty and exists, any *.yaml/*.yml policies in it.
func NewStore(customDir string) (*Store, error) {
	s := &Store{
		policies: map[string]*model.Policy{},
		log:      slog.With("component", "policy_store"),
	}
	s.loadBuiltins()

	if customDir != "" {
		if err := s.loadCustom(customDir); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns the named policy, falling back to the store's default when
// name is empty, and to a basic restrictive policy when name is unknown or
// no default has been set — an unknown name never fails the request.
func (s *Store) Get(name string) *model.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name != "" {
		if p, ok := s.policies[name]; ok {
			return p
		}
	}
	if s.def != "" {
		if p, ok := s.policies[s.def]; ok {
			return p
		}
	}
	s.log.Warn("no policies loaded, using basic restrictive policy")
	return basicPolicy()
}

// Add registers or replaces a named policy.
func (s *Store) Add(p *model.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Name] = p
	s.log.Info("policy added", "policy", p.Name)
}

// Remove unregisters a named policy.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, name)
	s.log.Info("policy removed", "policy", name)
}

// List returns the names of all registered policies.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	return names
}

// SetDefault designates policyName as the fallback used by Get(""). It must
// already be registered.
func (s *Store) SetDefault(policyName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[policyName]; !ok {
		return apperr.New(apperr.KindNotFound, "policy not found: "+policyName)
	}
	s.def = policyName
	s.log.Info("default policy set", "policy", policyName)
	return nil
}

func (s *Store) loadBuiltins() {
	s.mu.Lock()
	s.policies["strict"] = strictPolicy()
	s.policies["moderate"] = moderatePolicy()
	s.policies["permissive"] = permissivePolicy()
	s.def = "moderate"
	count := len(s.policies)
	s.mu.Unlock()

	s.log.Info("built-in policies loaded", "count", count)
}

func (s *Store) loadCustom(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("policies directory does not exist", "dir", dir)
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, "stat policies directory", err)
	}
	if !info.IsDir() {
		return apperr.New(apperr.KindInvalidRequest, "policies path is not a directory: "+dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "read policies directory", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Error("failed to load custom policy", "file", path, "error", err)
			continue
		}

		var p model.Policy
		if err := yaml.Unmarshal(data, &p); err != nil {
			s.log.Error("failed to load custom policy", "file", path, "error", err)
			continue
		}
		if err := validate.Struct(&p); err != nil {
			s.log.Error("custom policy failed validation", "file", path, "error", err)
			continue
		}

		s.mu.Lock()
		s.policies[p.Name] = &p
		s.mu.Unlock()
		s.log.Info("custom policy loaded", "policy", p.Name, "file", path)
	}
	return nil
}

func rule(name, description, pattern, severity, action string) model.Rule {
	return model.Rule{Name: name, Description: description, Pattern: pattern, Severity: severity, Action: action}
}

func strictPolicy() *model.Policy {
	return &model.Policy{
		Name:        "strict",
		Description: "Strict security policy with maximum restrictions",
		Rules: []model.Rule{
			rule("no_dangerous_imports", "Block dangerous imports",
				`import\s+(os|subprocess|sys|shutil|socket|urllib|requests|pickle|ctypes|multiprocessing|threading|eval|exec|compile|__import__)`,
				"error", "block"),
			rule("no_dangerous_functions", "Block dangerous function calls",
				`(eval|exec|compile|__import__|open|file|input|exit|quit)\s*\(`, "error", "block"),
			rule("no_system_calls", "Block system calls", `os\.system|subprocess\.|os\.popen`, "error", "block"),
		},
		ResourceLimits: model.ResourceLimits{
			CPUSeconds: 10, MemoryMB: 128, WallSeconds: 30,
			MaxFileSizeMB: 1, MaxFiles: 10, NetworkAccess: false, AllowSubprocess: false,
		},
		BlockedImports: []string{
			"os", "subprocess", "sys", "shutil", "socket", "urllib", "requests",
			"pickle", "ctypes", "multiprocessing", "threading", "eval", "exec", "compile", "__import__",
		},
		BlockedFunctions: []string{
			"eval", "exec", "compile", "__import__", "open", "file", "input", "exit", "quit", "reload",
		},
	}
}

func moderatePolicy() *model.Policy {
	return &model.Policy{
		Name:        "moderate",
		Description: "Moderate security policy with balanced restrictions",
		Rules: []model.Rule{
			rule("no_dangerous_imports", "Block most dangerous imports",
				`import\s+(subprocess|socket|urllib|requests|pickle|ctypes|multiprocessing|threading|eval|exec|compile|__import__)`,
				"error", "block"),
			rule("no_dangerous_functions", "Block dangerous function calls",
				`(eval|exec|compile|__import__|exit|quit)\s*\(`, "error", "block"),
			rule("warn_system_calls", "Warn about system calls", `os\.system|subprocess\.`, "warning", "warn"),
		},
		ResourceLimits: model.ResourceLimits{
			CPUSeconds: 30, MemoryMB: 256, WallSeconds: 60,
			MaxFileSizeMB: 5, MaxFiles: 50, NetworkAccess: false, AllowSubprocess: false,
		},
		BlockedImports: []string{
			"subprocess", "socket", "urllib", "requests", "pickle", "ctypes",
			"multiprocessing", "threading", "eval", "exec", "compile", "__import__",
		},
		BlockedFunctions: []string{"eval", "exec", "compile", "__import__", "exit", "quit", "reload"},
	}
}

func permissivePolicy() *model.Policy {
	return &model.Policy{
		Name:        "permissive",
		Description: "Permissive security policy with minimal restrictions",
		Rules: []model.Rule{
			rule("no_eval_exec", "Block eval and exec", `(eval|exec|compile|__import__)\s*\(`, "error", "block"),
			rule("warn_dangerous_imports", "Warn about dangerous imports",
				`import\s+(subprocess|socket|urllib|requests|pickle|ctypes)`, "warning", "warn"),
		},
		ResourceLimits: model.ResourceLimits{
			CPUSeconds: 60, MemoryMB: 512, WallSeconds: 120,
			MaxFileSizeMB: 10, MaxFiles: 100, NetworkAccess: false, AllowSubprocess: false,
		},
		BlockedImports:   []string{"eval", "exec", "compile", "__import__"},
		BlockedFunctions: []string{"eval", "exec", "compile", "__import__"},
	}
}

// basicPolicy is the no-policies-loaded fallback, mirroring
// PolicyManager._create_basic_policy exactly.
func basicPolicy() *model.Policy {
	return &model.Policy{
		Name:        "basic",
		Description: "Basic restrictive policy",
		Rules: []model.Rule{
			rule("no_dangerous_imports", "Block all dangerous imports",
				`import\s+(os|subprocess|sys|shutil|socket|urllib|requests|pickle|ctypes|multiprocessing|threading|eval|exec|compile|__import__)`,
				"error", "block"),
			rule("no_dangerous_functions", "Block all dangerous functions",
				`(eval|exec|compile|__import__|open|file|input|exit|quit|reload)\s*\(`, "error", "block"),
		},
		ResourceLimits: model.ResourceLimits{
			CPUSeconds: 5, MemoryMB: 64, WallSeconds: 15,
			MaxFileSizeMB: 1, MaxFiles: 5, NetworkAccess: false, AllowSubprocess: false,
		},
		BlockedImports: []string{
			"os", "subprocess", "sys", "shutil", "socket", "urllib", "requests",
			"pickle", "ctypes", "multiprocessing", "threading", "eval", "exec", "compile", "__import__",
		},
		BlockedFunctions: []string{
			"eval", "exec", "compile", "__import__", "open", "file", "input", "exit", "quit", "reload",
		},
	}
}
