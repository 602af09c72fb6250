package isolate

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

var errUnknownNamespace = errors.New("unknown namespace")

// NamespaceInit populates a fresh namespace. It runs once for every context
// that imports the namespace, so any state it captures belongs to that
// context alone.
type NamespaceInit func(ns *Namespace) error

// Namespace is one context's instance of a registered namespace: its
// callables and its global variables.
type Namespace struct {
	name      string
	callables map[string]Callable
	globals   map[string]any
	logger    *slog.Logger
	err       error
}

func newNamespace(name string, logger *slog.Logger) *Namespace {
	return &Namespace{
		name:      name,
		callables: make(map[string]Callable),
		globals:   make(map[string]any),
		logger:    logger.With("namespace", name),
	}
}

// Name returns the registered name of the namespace.
func (ns *Namespace) Name() string {
	return ns.name
}

// Def defines a callable. Defining an empty name, a nil function or the same
// name twice makes the namespace fail to load.
func (ns *Namespace) Def(name string, fn Callable) {
	switch {
	case name == "":
		ns.err = errors.Join(ns.err, fmt.Errorf("namespace %q: empty callable name", ns.name))
	case fn == nil:
		ns.err = errors.Join(ns.err, fmt.Errorf("namespace %q: callable %q is nil", ns.name, name))
	case ns.callables[name] != nil:
		ns.err = errors.Join(ns.err, fmt.Errorf("namespace %q: callable %q defined twice", ns.name, name))
	default:
		ns.callables[name] = fn
	}
}

// Set assigns a global variable of this namespace instance.
func (ns *Namespace) Set(key string, value any) {
	ns.globals[key] = value
}

// Get reads a global variable of this namespace instance.
func (ns *Namespace) Get(key string) (any, bool) {
	v, ok := ns.globals[key]
	return v, ok
}

// Logger returns a logger scoped to the namespace and its context.
func (ns *Namespace) Logger() *slog.Logger {
	return ns.logger
}

func (ns *Namespace) lookup(name string) (Callable, bool) {
	fn, ok := ns.callables[name]
	return fn, ok
}

func (ns *Namespace) names() []string {
	names := make([]string, 0, len(ns.callables))
	for name := range ns.callables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps namespace names to their init functions. It is safe for
// concurrent use and is shared read-only by every context.
type Registry struct {
	mu        sync.RWMutex
	inits     map[string]NamespaceInit
	callables map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		inits:     make(map[string]NamespaceInit),
		callables: make(map[string][]string),
	}
}

// Register adds a namespace. The init function is run once against a probe
// namespace so that a broken namespace is rejected here instead of inside
// every task: it must succeed and define at least one callable.
func (r *Registry) Register(name string, init NamespaceInit) error {
	if name == "" {
		return errors.New("namespace name must not be empty")
	}
	if init == nil {
		return fmt.Errorf("namespace %q: nil init function", name)
	}

	probe := newNamespace(name, discardLogger())
	if err := runInit(probe, init); err != nil {
		return err
	}
	if len(probe.callables) == 0 {
		return fmt.Errorf("namespace %q defines no callables", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.inits[name]; exists {
		return fmt.Errorf("namespace %q already registered", name)
	}
	r.inits[name] = init
	r.callables[name] = probe.names()
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, init NamespaceInit) {
	if err := r.Register(name, init); err != nil {
		panic(err)
	}
}

// Namespaces lists the registered namespace names in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.inits))
	for name := range r.inits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Callables lists the callables a namespace defined at registration time.
func (r *Registry) Callables(namespace string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, ok := r.callables[namespace]
	if !ok {
		return nil, false
	}
	return append([]string(nil), names...), true
}

// instantiate builds a fresh instance of a namespace for one context.
func (r *Registry) instantiate(name string, logger *slog.Logger) (*Namespace, error) {
	r.mu.RLock()
	init, ok := r.inits[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errUnknownNamespace
	}

	ns := newNamespace(name, logger)
	if err := runInit(ns, init); err != nil {
		return nil, err
	}
	return ns, nil
}

func runInit(ns *Namespace, init NamespaceInit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("namespace %q: init panicked: %v", ns.name, r)
		}
	}()

	if initErr := init(ns); initErr != nil {
		return fmt.Errorf("namespace %q: init: %w", ns.name, initErr)
	}
	return ns.err
}

// Func0 adapts a function without arguments into a Callable.
func Func0[R any](fn func() (R, error)) Callable {
	return func(args []any) (any, error) {
		if err := checkArity(args, 0); err != nil {
			return nil, err
		}
		return fn()
	}
}

// Func1 adapts a single-argument function into a Callable. Numeric arguments
// are converted to A when the conversion is lossless.
func Func1[A, R any](fn func(A) (R, error)) Callable {
	return func(args []any) (any, error) {
		if err := checkArity(args, 1); err != nil {
			return nil, err
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(a)
	}
}

// Func2 adapts a two-argument function into a Callable.
func Func2[A, B, R any](fn func(A, B) (R, error)) Callable {
	return func(args []any) (any, error) {
		if err := checkArity(args, 2); err != nil {
			return nil, err
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argAs[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(a, b)
	}
}

func checkArity(args []any, want int) error {
	if len(args) == want {
		return nil
	}
	return &ArgumentError{
		Position: min(len(args), want),
		Want:     fmt.Sprintf("%d arguments", want),
		Got:      fmt.Sprintf("%d arguments", len(args)),
	}
}

func argAs[T any](args []any, i int) (T, error) {
	var zero T
	want := reflect.TypeOf((*T)(nil)).Elem()

	if i >= len(args) {
		return zero, &ArgumentError{Position: i, Want: want.String()}
	}
	if v, ok := args[i].(T); ok {
		return v, nil
	}

	src := reflect.ValueOf(args[i])
	if !src.IsValid() {
		if want.Kind() == reflect.Interface {
			return zero, nil
		}
		return zero, &ArgumentError{Position: i, Want: want.String(), Got: "nil"}
	}
	if isNumeric(src.Kind()) && isNumeric(want.Kind()) && !negativeToUnsigned(src, want) {
		converted := src.Convert(want)
		if converted.Convert(src.Type()).Interface() == src.Interface() {
			return converted.Interface().(T), nil
		}
	}
	return zero, &ArgumentError{Position: i, Want: want.String(), Got: src.Type().String()}
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func negativeToUnsigned(src reflect.Value, want reflect.Type) bool {
	switch want.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return false
	}
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return src.Int() < 0
	case reflect.Float32, reflect.Float64:
		return src.Float() < 0
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
