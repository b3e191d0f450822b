package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// async runs work off the loop under the app's cancellation token and
// settles the returned promise back on the loop. Completions that arrive
// after cleanup are dropped and the promise never settles.
func (b *binder) async(work func(ctx context.Context) (interface{}, error)) goja.Value {
	vm := b.vm()
	promise, resolve, reject := vm.NewPromise()
	ctx := b.inst.bundle.Context()
	inst := b.inst

	go func() {
		result, err := work(ctx)
		b.h.post(func() {
			if ctx.Err() != nil || !inst.alive() {
				inst.logger.Debug("late completion dropped")
				return
			}
			if err != nil {
				_ = reject(vm.NewGoError(err))
				return
			}
			_ = resolve(vm.ToValue(result))
		})
	}()
	return vm.ToValue(promise)
}

func exportArg(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func fileInfoValue(fi types.FileInfo) map[string]interface{} {
	return map[string]interface{}{
		"path":       fi.Path,
		"name":       fi.Name,
		"isDir":      fi.IsDir,
		"size":       fi.Size,
		"mimeType":   fi.MimeType,
		"charset":    fi.Charset,
		"modifiedAt": fi.ModifiedAt.UnixMilli(),
	}
}

func fileInfoList(list []types.FileInfo) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, fi := range list {
		out = append(out, fileInfoValue(fi))
	}
	return out
}

func messageValue(m types.Message) map[string]interface{} {
	return map[string]interface{}{
		"id":        m.ID,
		"room":      m.Room,
		"event":     m.Event,
		"payload":   m.Payload,
		"sender":    m.Sender,
		"timestamp": m.Timestamp.UnixMilli(),
	}
}

// capabilityLocals returns the settings, notification and storage helpers
// bound as app locals
func (b *binder) capabilityLocals() map[string]goja.Value {
	vm := b.vm()
	bundle := b.inst.bundle

	storage := vm.NewObject()
	_ = storage.Set("getItem", func(call goja.FunctionCall) goja.Value {
		if v, ok := bundle.StorageGet(call.Argument(0).String()); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = storage.Set("setItem", func(call goja.FunctionCall) goja.Value {
		if err := bundle.StorageSet(call.Argument(0).String(), exportArg(call.Argument(1))); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	_ = storage.Set("removeItem", func(call goja.FunctionCall) goja.Value {
		if err := bundle.StorageRemove(call.Argument(0).String()); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	})
	_ = storage.Set("keys", func(goja.FunctionCall) goja.Value {
		keys := bundle.StorageKeys()
		items := make([]interface{}, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return vm.NewArray(items...)
	})

	return map[string]goja.Value{
		"getAppSetting": b.fn(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(bundle.GetAppSetting(call.Argument(0).String(), exportArg(call.Argument(1))))
		}),
		"getAllAppSettings": b.fn(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(bundle.GetAllAppSettings())
		}),
		"setAppSetting": b.fn(func(call goja.FunctionCall) goja.Value {
			key, value := call.Argument(0).String(), exportArg(call.Argument(1))
			return b.async(func(ctx context.Context) (interface{}, error) {
				return nil, bundle.SetAppSetting(ctx, key, value)
			})
		}),
		"showNotification": b.fn(func(call goja.FunctionCall) goja.Value {
			level := types.LevelInfo
			if v := call.Argument(1); !goja.IsUndefined(v) {
				level = types.NotificationLevel(v.String())
			}
			n, err := bundle.ShowNotification(b.inst.AppID, call.Argument(0).String(), level)
			if err != nil {
				b.throw(err)
			}
			return vm.ToValue(n.ID)
		}),
		"storage":      storage,
		"localStorage": storage,
	}
}

// apiObject builds the `api` local: the full capability surface
func (b *binder) apiObject(locals map[string]goja.Value) *goja.Object {
	vm := b.vm()
	bundle := b.inst.bundle
	api := vm.NewObject()

	settings := vm.NewObject()
	_ = settings.Set("get", locals["getAppSetting"])
	_ = settings.Set("all", locals["getAllAppSettings"])
	_ = settings.Set("set", locals["setAppSetting"])
	_ = api.Set("settings", settings)

	_ = api.Set("notify", func(call goja.FunctionCall) goja.Value {
		level := types.LevelInfo
		if v := call.Argument(2); !goja.IsUndefined(v) {
			level = types.NotificationLevel(v.String())
		}
		n, err := bundle.ShowNotification(call.Argument(0).String(), call.Argument(1).String(), level)
		if err != nil {
			b.throw(err)
		}
		return vm.ToValue(n.ID)
	})
	_ = api.Set("storage", locals["storage"])
	_ = api.Set("fs", b.fsObject())
	_ = api.Set("socket", b.socketObject())
	_ = api.Set("http", b.httpObject())
	return api
}

func (b *binder) fsObject() *goja.Object {
	vm := b.vm()
	bundle := b.inst.bundle
	fsObj := vm.NewObject()

	op := func(name string, work func(ctx context.Context, fs capability.FileSystem, args []string) (interface{}, error)) {
		_ = fsObj.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]string, 2)
			for i := range args {
				if v := call.Argument(i); !goja.IsUndefined(v) {
					args[i] = v.String()
				}
			}
			return b.async(func(ctx context.Context) (interface{}, error) {
				fs, err := bundle.FS()
				if err != nil {
					return nil, err
				}
				return work(ctx, fs, args)
			})
		})
	}

	op("read", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		data, _, err := fs.ReadFile(ctx, a[0])
		return string(data), err
	})
	op("write", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		fi, err := fs.WriteFile(ctx, a[0], []byte(a[1]))
		return fileInfoValue(fi), err
	})
	op("mkdir", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		fi, err := fs.Mkdir(ctx, a[0])
		return fileInfoValue(fi), err
	})
	op("stat", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		fi, err := fs.Stat(ctx, a[0])
		return fileInfoValue(fi), err
	})
	op("list", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		list, err := fs.List(ctx, a[0])
		return fileInfoList(list), err
	})
	op("glob", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		list, err := fs.Glob(ctx, a[0])
		return fileInfoList(list), err
	})
	op("remove", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		return nil, fs.Delete(ctx, a[0])
	})
	op("rename", func(ctx context.Context, fs capability.FileSystem, a []string) (interface{}, error) {
		return nil, fs.Rename(ctx, a[0], a[1])
	})
	return fsObj
}

func (b *binder) httpObject() *goja.Object {
	vm := b.vm()
	bundle := b.inst.bundle
	httpObj := vm.NewObject()

	do := func(req types.FetchRequest) goja.Value {
		return b.async(func(ctx context.Context) (interface{}, error) {
			resp, err := bundle.Fetch(ctx, req)
			if err != nil {
				return nil, err
			}
			headers := make(map[string]interface{}, len(resp.Headers))
			for k, v := range resp.Headers {
				headers[k] = v
			}
			return map[string]interface{}{
				"status":  resp.Status,
				"headers": headers,
				"body":    resp.Body,
			}, nil
		})
	}

	_ = httpObj.Set("request", func(call goja.FunctionCall) goja.Value {
		opts, ok := call.Argument(0).(*goja.Object)
		if !ok {
			b.throwType("request expects an options object")
		}
		req := types.FetchRequest{Headers: map[string]string{}}
		if v := opts.Get("method"); v != nil && !goja.IsUndefined(v) {
			req.Method = v.String()
		}
		if v := opts.Get("url"); v != nil {
			req.URL = v.String()
		}
		if v := opts.Get("body"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			req.Body = v.String()
		}
		if h, ok := opts.Get("headers").(*goja.Object); ok {
			for _, k := range h.Keys() {
				req.Headers[k] = h.Get(k).String()
			}
		}
		return do(req)
	})
	_ = httpObj.Set("get", func(call goja.FunctionCall) goja.Value {
		return do(types.FetchRequest{Method: "GET", URL: call.Argument(0).String()})
	})
	return httpObj
}

func (b *binder) socketObject() *goja.Object {
	vm := b.vm()
	socketNS := vm.NewObject()

	_ = socketNS.Set("connect", func(call goja.FunctionCall) goja.Value {
		room := ""
		if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
			room = v.String()
		}

		handlers := make(map[string][]goja.Callable)
		inst := b.inst
		ctx := inst.bundle.Context()
		deliver := func(msg types.Message) {
			b.h.post(func() {
				if ctx.Err() != nil || !inst.alive() {
					return
				}
				payload := vm.ToValue(messageValue(msg))
				for _, fn := range append(handlers[msg.Event], handlers["*"]...) {
					b.call("socket", fn, goja.Undefined(), payload)
				}
			})
		}

		s, err := inst.bundle.Connect(room, deliver)
		if err != nil {
			if errors.Is(err, capability.ErrUnavailable) {
				b.throwType("sockets are not available")
			}
			b.throw(err)
		}

		o := vm.NewObject()
		_ = o.Set("id", s.ID)
		_ = o.Set("on", func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				b.throwType("socket.on handler must be a function")
			}
			event := call.Argument(0).String()
			handlers[event] = append(handlers[event], fn)
			return o
		})
		_ = o.Set("off", func(call goja.FunctionCall) goja.Value {
			delete(handlers, call.Argument(0).String())
			return o
		})
		_ = o.Set("emit", func(call goja.FunctionCall) goja.Value {
			target := ""
			if v := call.Argument(2); !goja.IsUndefined(v) {
				target = v.String()
			}
			if err := s.Emit(target, call.Argument(0).String(), exportArg(call.Argument(1))); err != nil {
				b.throw(err)
			}
			return goja.Undefined()
		})
		_ = o.Set("join", func(call goja.FunctionCall) goja.Value {
			if err := s.Join(call.Argument(0).String()); err != nil {
				b.throw(err)
			}
			return goja.Undefined()
		})
		_ = o.Set("leave", func(call goja.FunctionCall) goja.Value {
			if err := s.Leave(call.Argument(0).String()); err != nil {
				b.throw(err)
			}
			return goja.Undefined()
		})
		_ = o.Set("close", func(goja.FunctionCall) goja.Value {
			s.Close()
			return goja.Undefined()
		})
		inst.logger.Debug("socket opened", zap.String("socket", s.ID), zap.String("room", room))
		return o
	})
	return socketNS
}

func notifyTitle(appID string) string {
	return fmt.Sprintf("%s error", appID)
}
