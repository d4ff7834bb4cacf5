package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"crossplay/codec"
	"crossplay/message"
)

// runInspect decodes an artifact and prints the normalized record as YAML.
// Files ending in .yaml or .yml are read as YAML, .cbor as CBOR, everything
// else as JSON.
func runInspect(args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: inspect takes exactly one file", errUsage)
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	in := codec.GetCodec(codec.CodecTypeJSON)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		in = codec.GetCodec(codec.CodecTypeYAML)
	case ".cbor":
		in = codec.GetCodec(codec.CodecTypeCBOR)
	}
	tree, err := in.Decode(data)
	if err != nil {
		return err
	}
	obj, err := message.Decode(tree)
	if err != nil {
		return err
	}

	out, err := codec.GetCodec(codec.CodecTypeYAML).Encode(message.Encode(obj))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "# %s\n", obj)
	_, err = stdout.Write(out)
	return err
}
