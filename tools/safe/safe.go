package safe

import (
	"fmt"
	"reflect"

	"PPAdmin/logger"
	"PPAdmin/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if v is nil; used for constructor arguments.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Recover runs f and turns a panic into an error.
func Recover(name string, f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
			logger.Error("[safe] panic recovered", zap.String("task", name), zap.Error(err))
		}
	}()
	f()
	return nil
}

// SafeGo starts f in a goroutine that logs instead of crashing on panic.
func SafeGo(name string, f func()) {
	go func() { _ = Recover(name, f) }()
}
