// devrpc-call invokes a single procedure on a running devrpcd and prints
// the result, mainly for poking at a server during development:
//
//	devrpc-call -addr 127.0.0.1:9190 -key devrpcd echo hello
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hexlantern/devrpc"
	"github.com/hexlantern/devrpc/codec"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9190", "server address")
	key := flag.String("key", "devrpcd", "server key to request")
	timeout := flag.Duration("timeout", 10*time.Second, "connect timeout")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: devrpc-call [flags] <procedure> [args...]")
		os.Exit(2)
	}
	proc := flag.Arg(0)
	args := make([]codec.Value, 0, flag.NArg()-1)
	for _, raw := range flag.Args()[1:] {
		args = append(args, parseArg(raw))
	}

	sess, err := devrpc.Connect(context.Background(), *addr, *key,
		&devrpc.Options{ConnectTimeout: *timeout})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer sess.Close()

	result, err := sess.Invoke(proc, args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invoke:", err)
		os.Exit(1)
	}
	fmt.Println(format(result))
}

// parseArg maps a command-line token to the narrowest matching value kind.
func parseArg(raw string) codec.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return codec.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return codec.Float(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return codec.Bool(b)
	}
	return codec.Str(raw)
}

func format(v codec.Value) string {
	switch v.Kind() {
	case codec.KindNil:
		return "nil"
	case codec.KindBool:
		return strconv.FormatBool(v.Bool())
	case codec.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case codec.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case codec.KindStr:
		return v.Str()
	case codec.KindBytes:
		return fmt.Sprintf("%x", v.Bytes())
	case codec.KindList:
		out := "["
		for i, el := range v.List() {
			if i > 0 {
				out += ", "
			}
			out += format(el)
		}
		return out + "]"
	}
	return v.Kind().String()
}
