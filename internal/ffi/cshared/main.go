// Command cshared builds the cgo c-shared library consumed by non-Go
// callers, mirroring the original Rust crate's extern "C" surface field for
// field: StringData, ShowData, Completion, and the internals_* functions.
// It is a thin marshaling layer; all real logic lives in internal/ffi.
package main

/*
#include <stdlib.h>
#include <stdint.h>

typedef struct StringData {
	const char *ptr;
	size_t len;
} StringData;

typedef struct ShowData {
	StringData channel;
	StringData topic;
	StringData title;
	int64_t date;
	uint32_t time;
	uint32_t duration;
	StringData description;
	StringData website;
	StringData url;
	StringData url_small;
	StringData url_large;
} ShowData;

typedef struct Completion {
	void *context;
	void (*action)(void *context, const char *error);
} Completion;

typedef void (*append_string_fn)(void *sink, const char *ptr, size_t len);
typedef void (*append_integer_fn)(void *sink, int64_t value);
typedef void (*fetch_show_fn)(void *sink, ShowData show);

static inline void call_completion(Completion c, const char *error) {
	c.action(c.context, error);
}

static inline void call_append_string(append_string_fn fn, void *sink, const char *ptr, size_t len) {
	fn(sink, ptr, len);
}

static inline void call_append_integer(append_integer_fn fn, void *sink, int64_t value) {
	fn(sink, value);
}

static inline void call_fetch_show(fetch_show_fn fn, void *sink, ShowData show) {
	fn(sink, show);
}
*/
import "C"

import (
	"context"
	"log"
	"unsafe"

	"github.com/filmindex/filmindex/internal/catalogdb"
	"github.com/filmindex/filmindex/internal/ffi"
)

func goString(s C.StringData) string {
	if s.ptr == nil || s.len == 0 {
		return ""
	}
	return C.GoStringN(s.ptr, C.int(s.len))
}

// internals_init opens or creates the catalog database at path and reports
// whether a full update is needed via needs_update.
//
//export internals_init
func internals_init(path *C.char, needsUpdate *C.int) C.uintptr_t {
	dir := C.GoString(path)
	handle, needs, err := ffi.Open(dir, 2000, true, true)
	if err != nil {
		if needsUpdate != nil {
			*needsUpdate = 0
		}
		return 0
	}
	if needsUpdate != nil {
		if needs {
			*needsUpdate = 1
		} else {
			*needsUpdate = 0
		}
	}
	return C.uintptr_t(handle)
}

// internals_drop closes and releases the catalog identified by handle.
//
//export internals_drop
func internals_drop(handle C.uintptr_t) {
	_ = ffi.Drop(uintptr(handle))
}

func invokeCompletion(completion C.Completion, err error) {
	if err == nil {
		C.call_completion(completion, nil)
		return
	}
	msg := C.CString(err.Error())
	defer C.free(unsafe.Pointer(msg))
	C.call_completion(completion, msg)
}

// internals_full_update re-indexes the whole catalog from url, invoking
// completion exactly once when done.
//
//export internals_full_update
func internals_full_update(handle C.uintptr_t, url *C.char, completion C.Completion) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		invokeCompletion(completion, errUnknownHandle)
		return
	}
	u := C.GoString(url)
	go func() {
		err := in.FullUpdate(context.Background(), u)
		invokeCompletion(completion, err)
	}()
}

// internals_partial_update applies url's items incrementally.
//
//export internals_partial_update
func internals_partial_update(handle C.uintptr_t, url *C.char, completion C.Completion) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		invokeCompletion(completion, errUnknownHandle)
		return
	}
	u := C.GoString(url)
	go func() {
		err := in.PartialUpdate(context.Background(), u)
		invokeCompletion(completion, err)
	}()
}

// internals_channels invokes append_string once per distinct channel name.
//
//export internals_channels
func internals_channels(handle C.uintptr_t, sink unsafe.Pointer, appendString C.append_string_fn) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		return
	}
	if err := in.Channels(func(channel string) {
		cs := C.CString(channel)
		C.call_append_string(appendString, sink, cs, C.size_t(len(channel)))
		C.free(unsafe.Pointer(cs))
	}); err != nil {
		log.Printf("cshared: internals_channels: %v", err)
	}
}

// internals_topics invokes append_string once per distinct topic under channel.
//
//export internals_topics
func internals_topics(handle C.uintptr_t, channel C.StringData, sink unsafe.Pointer, appendString C.append_string_fn) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		return
	}
	if err := in.Topics(goString(channel), func(topic string) {
		cs := C.CString(topic)
		C.call_append_string(appendString, sink, cs, C.size_t(len(topic)))
		C.free(unsafe.Pointer(cs))
	}); err != nil {
		log.Printf("cshared: internals_topics: %v", err)
	}
}

// internals_query invokes append_integer once per matching show id, in
// sort_column/sort_order order.
//
//export internals_query
func internals_query(handle C.uintptr_t, channel, topic, title C.StringData, sortColumn, sortOrder C.int, sink unsafe.Pointer, appendInteger C.append_integer_fn) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		return
	}
	if err := in.Query(
		goString(channel), goString(topic), goString(title),
		catalogdb.SortColumn(sortColumn), catalogdb.SortOrder(sortOrder),
		func(id int64) {
			C.call_append_integer(appendInteger, sink, C.int64_t(id))
		},
	); err != nil {
		log.Printf("cshared: internals_query: %v", err)
	}
}

// internals_fetch resolves id to its full record and invokes fetch_show
// exactly once, only on success.
//
//export internals_fetch
func internals_fetch(handle C.uintptr_t, id C.int64_t, sink unsafe.Pointer, fetchShow C.fetch_show_fn) {
	in, ok := ffi.Lookup(uintptr(handle))
	if !ok {
		return
	}
	show, err := in.Fetch(int64(id))
	if err != nil {
		log.Printf("cshared: internals_fetch: %v", err)
		return
	}
	data, free := showToC(show)
	C.call_fetch_show(fetchShow, sink, data)
	free()
}

// showToC allocates C strings for every field and returns a func that frees
// them all. The ABI contract, matching the Rust crate's, is that the
// callback reads or copies each StringData synchronously; free runs right
// after the callback returns, so no pointer escapes the call.
func showToC(show catalogdb.Show) (data C.ShowData, free func()) {
	var allocated []unsafe.Pointer
	alloc := func(s string) C.StringData {
		if s == "" {
			return C.StringData{}
		}
		cs := C.CString(s)
		allocated = append(allocated, unsafe.Pointer(cs))
		return C.StringData{ptr: cs, len: C.size_t(len(s))}
	}
	allocPtr := func(s *string) C.StringData {
		if s == nil {
			return C.StringData{}
		}
		return alloc(*s)
	}

	data = C.ShowData{
		channel:     alloc(show.Channel),
		topic:       alloc(show.Topic),
		title:       alloc(show.Title),
		date:        C.int64_t(catalogdb.JulianDay(show.Date)),
		time:        C.uint32_t(show.Time),
		duration:    C.uint32_t(show.Duration),
		description: alloc(show.Description),
		website:     alloc(show.Website),
		url:         alloc(show.URL),
		url_small:   allocPtr(show.URLSmall),
		url_large:   allocPtr(show.URLLarge),
	}
	free = func() {
		for _, p := range allocated {
			C.free(p)
		}
	}
	return data, free
}

func main() {}
