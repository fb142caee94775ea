package runtime

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/jsrt/engine"
	"github.com/wippyai/jsrt/errors"
)

// Attributes is the runtime attribute bit set, fixed at creation.
type Attributes uint32

const (
	AttrNone                            = Attributes(engine.AttributeNone)
	AttrDisableBackgroundWork           = Attributes(engine.AttributeDisableBackgroundWork)
	AttrAllowScriptInterrupt            = Attributes(engine.AttributeAllowScriptInterrupt)
	AttrEnableIdleProcessing            = Attributes(engine.AttributeEnableIdleProcessing)
	AttrDisableNativeCodeGeneration     = Attributes(engine.AttributeDisableNativeCodeGeneration)
	AttrDisableEval                     = Attributes(engine.AttributeDisableEval)
	AttrEnableExperimentalFeatures      = Attributes(engine.AttributeEnableExperimentalFeatures)
	AttrDispatchSetExceptionsToDebugger = Attributes(engine.AttributeDispatchSetExceptionsToDebugger)
	AttrDisableFatalOnOOM               = Attributes(engine.AttributeDisableFatalOnOOM)
)

var attributeNames = map[string]Attributes{
	"disable_background_work":             AttrDisableBackgroundWork,
	"allow_script_interrupt":              AttrAllowScriptInterrupt,
	"enable_idle_processing":              AttrEnableIdleProcessing,
	"disable_native_code_generation":      AttrDisableNativeCodeGeneration,
	"disable_eval":                        AttrDisableEval,
	"enable_experimental_features":        AttrEnableExperimentalFeatures,
	"dispatch_set_exceptions_to_debugger": AttrDispatchSetExceptionsToDebugger,
	"disable_fatal_on_oom":                AttrDisableFatalOnOOM,
}

// Has reports whether all bits of attr are set.
func (a Attributes) Has(attr Attributes) bool {
	return a&attr == attr
}

// Names returns the sorted names of the set bits.
func (a Attributes) Names() []string {
	var names []string
	for name, bit := range attributeNames {
		if a&bit != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (a Attributes) String() string {
	if a == AttrNone {
		return "none"
	}
	return strings.Join(a.Names(), "|")
}

// UnmarshalYAML accepts a list of attribute names or a raw integer.
func (a *Attributes) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw uint32
		if err := node.Decode(&raw); err != nil {
			var name string
			if nerr := node.Decode(&name); nerr != nil {
				return err
			}
			return a.set([]string{name}, node.Line)
		}
		*a = Attributes(raw)
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		return a.set(names, node.Line)
	}
	return fmt.Errorf("line %d: attributes must be a list of names", node.Line)
}

func (a *Attributes) set(names []string, line int) error {
	var out Attributes
	for _, name := range names {
		bit, ok := attributeNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("line %d: unknown runtime attribute %q", line, name)
		}
		out |= bit
	}
	*a = out
	return nil
}

// MarshalYAML writes the attribute names.
func (a Attributes) MarshalYAML() (any, error) {
	return a.Names(), nil
}

// Config holds configuration for runtime creation.
type Config struct {
	// Logger receives runtime lifecycle and boundary diagnostics.
	// nil means a no-op logger.
	Logger *zap.Logger `yaml:"-"`

	// Engine is the engine thread the runtime runs on. Runtimes sharing an
	// engine share its current-context slot. nil creates a private engine.
	Engine engine.Table `yaml:"-"`

	// Registerer, if set, gets a Collector for the runtime registered on
	// creation and unregistered on Dispose.
	Registerer prometheus.Registerer `yaml:"-"`

	Attributes Attributes `yaml:"attributes"`

	// MaxCallStackSize bounds script call depth. 0 keeps the engine default.
	// Ignored when Engine is set.
	MaxCallStackSize int `yaml:"max_call_stack_size"`
}

// Option configures a runtime.
type Option func(*Config)

// WithAttributes sets the runtime attributes.
func WithAttributes(attrs Attributes) Option {
	return func(c *Config) {
		c.Attributes = attrs
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithEngine runs the runtime on an existing engine thread.
func WithEngine(t engine.Table) Option {
	return func(c *Config) {
		c.Engine = t
	}
}

// WithMaxCallStackSize bounds script call depth.
func WithMaxCallStackSize(n int) Option {
	return func(c *Config) {
		c.MaxCallStackSize = n
	}
}

// WithMetrics registers a Collector for the runtime on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

// ParseConfig reads a YAML runtime configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// empty document
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse runtime config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.MaxCallStackSize < 0 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("max_call_stack_size must not be negative, got %d", c.MaxCallStackSize))
	}
	return nil
}
