package devrpc

import (
	"fmt"
	"go/ast"
	"reflect"
	"sort"
	"sync"

	"github.com/hexlantern/devrpc/codec"
)

// Handler is one remotely invocable procedure. Returning an error delivers
// an exception frame to the caller; the connection stays up.
type Handler func(args []codec.Value) (codec.Value, error)

// Registry is the name-keyed table a server loop dispatches against. It is
// safe for concurrent lookup while loops run and for registration from any
// goroutine, though registering everything before serving is the usual
// shape.
type Registry struct {
	procs sync.Map // string -> Handler
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("devrpc: procedure name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("devrpc: procedure %s has a nil handler", name)
	}
	if _, loaded := r.procs.LoadOrStore(name, h); loaded {
		return fmt.Errorf("devrpc: procedure %s is already registered", name)
	}
	return nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	v, ok := r.procs.Load(name)
	if !ok {
		return nil, false
	}
	return v.(Handler), true
}

// Names returns the registered procedure names in sorted order.
func (r *Registry) Names() []string {
	var names []string
	r.procs.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// RegisterMethods registers every exported method of recv whose signature
// matches Handler, under "Type.Method" names. Methods with other signatures
// are skipped silently, so a receiver may mix procedures with plain
// methods.
func (r *Registry) RegisterMethods(recv interface{}) error {
	rv := reflect.ValueOf(recv)
	rt := reflect.TypeOf(recv)
	name := reflect.Indirect(rv).Type().Name()
	if !ast.IsExported(name) {
		return fmt.Errorf("devrpc: %s is not an exported receiver type", name)
	}
	registered := 0
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		h, ok := rv.Method(i).Interface().(func([]codec.Value) (codec.Value, error))
		if !ok {
			continue
		}
		if err := r.Register(name+"."+m.Name, Handler(h)); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("devrpc: %s has no methods with a handler signature", name)
	}
	return nil
}

// DefaultRegistry serves entry points that do not carry an explicit
// registry, mirroring the usual register-then-serve flow.
var DefaultRegistry = NewRegistry()

func Register(name string, h Handler) error {
	return DefaultRegistry.Register(name, h)
}
