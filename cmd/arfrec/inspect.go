package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-arf/container"
)

type attrInfo struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type objectInfo struct {
	Path       string     `json:"path"`
	Kind       string     `json:"kind"`
	Type       string     `json:"type,omitempty"`
	Extent     []uint64   `json:"extent,omitempty"`
	MaxExtent  []int64    `json:"max_extent,omitempty"`
	Chunk      []uint64   `json:"chunk,omitempty"`
	Filters    []string   `json:"filters,omitempty"`
	Attributes []attrInfo `json:"attributes,omitempty"`
}

type fileInfo struct {
	File    string       `json:"file"`
	Objects []objectInfo `json:"objects"`
}

var filterNames = map[uint16]string{
	1:     "deflate",
	2:     "shuffle",
	3:     "fletcher32",
	32004: "lz4",
	32015: "zstd",
}

func filterName(id uint16) string {
	if name, ok := filterNames[id]; ok {
		return name
	}
	return "filter" + strconv.Itoa(int(id))
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the groups, arrays and attributes of ARF files",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of text", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return cli.Exit("error: inspect needs at least one file", 1)
			}
			files := make([]fileInfo, 0, len(paths))
			for _, p := range paths {
				objs, err := inspectFile(p)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				files = append(files, fileInfo{File: p, Objects: objs})
			}
			if asJSON {
				return printJSON(os.Stdout, files)
			}
			printText(os.Stdout, files)
			return nil
		},
	}
}

// inspectFile opens path read-only and lists every object in it.
func inspectFile(path string) ([]objectInfo, error) {
	c, err := container.Open(path, container.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var infos []container.ObjectInfo
	if err := c.Walk(func(info container.ObjectInfo) error {
		infos = append(infos, info)
		return nil
	}); err != nil {
		return nil, err
	}

	objs := make([]objectInfo, 0, len(infos))
	for _, info := range infos {
		obj := objectInfo{Path: info.Path, Kind: "group"}
		switch {
		case info.Opaque:
			obj.Kind = "opaque"
		case !info.Group:
			obj.Kind = "array"
			obj.Type = info.Type.String()
			obj.Extent = info.Extent
			obj.Chunk = info.Chunk
			for _, d := range info.MaxExtent {
				if d == ^uint64(0) {
					obj.MaxExtent = append(obj.MaxExtent, -1)
				} else {
					obj.MaxExtent = append(obj.MaxExtent, int64(d))
				}
			}
			for _, id := range info.Filters {
				obj.Filters = append(obj.Filters, filterName(id))
			}
		}
		for _, name := range info.Attributes {
			v, err := c.Attribute(info.Path, name)
			if err != nil {
				v = fmt.Sprintf("<%v>", err)
			}
			obj.Attributes = append(obj.Attributes, attrInfo{Name: name, Value: v})
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func printJSON(w io.Writer, files []fileInfo) error {
	data, err := json.MarshalIndent(files, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func dims(ds []uint64) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func maxDims(ds []int64) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		if d < 0 {
			parts[i] = "unlimited"
		} else {
			parts[i] = strconv.FormatInt(d, 10)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func printText(w io.Writer, files []fileInfo) {
	for _, f := range files {
		fmt.Fprintf(w, "%s\n", f.File)
		for _, o := range f.Objects {
			switch o.Kind {
			case "array":
				fmt.Fprintf(w, "  %-28s %s extent=%s max=%s chunk=%s", o.Path, o.Type, dims(o.Extent), maxDims(o.MaxExtent), dims(o.Chunk))
				if len(o.Filters) > 0 {
					fmt.Fprintf(w, " filters=%s", strings.Join(o.Filters, ","))
				}
				fmt.Fprintln(w)
			default:
				fmt.Fprintf(w, "  %-28s %s\n", o.Path, o.Kind)
			}
			for _, a := range o.Attributes {
				fmt.Fprintf(w, "    @%s = %v\n", a.Name, a.Value)
			}
		}
	}
}
