package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/OpenCubicChunks/RegionLib/keys"
	"github.com/OpenCubicChunks/RegionLib/region"
	"github.com/OpenCubicChunks/RegionLib/save"
)

const usage = `usage: regionctl -dir <save> [-ext mca|mcr] <command> [args]

commands:
  put <x> <z> <file>   store the file's bytes at chunk (x, z)
  get <x> <z>          print the bytes stored at chunk (x, z) to stdout
  del <x> <z>          remove the entry at chunk (x, z)
  keys                 list all stored chunk coordinates
`

func main() {
	dir := flag.String("dir", ".", "save directory")
	ext := flag.String("ext", keys.ExtensionMCA, "region file extension (mca or mcr)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := run(*dir, *ext, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "regionctl: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, ext string, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	section := save.NewMinecraftSaveSection(dir, ext)
	defer section.Close()

	switch cmd := args[0]; cmd {
	case "put":
		x, z, err := chunkArgs(args[1:], 3)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[3])
		if err != nil {
			return err
		}
		return section.Save(keys.NewMinecraftChunkLocation(x, z, ext), data)

	case "get":
		x, z, err := chunkArgs(args[1:], 2)
		if err != nil {
			return err
		}
		data, err := section.Load(keys.NewMinecraftChunkLocation(x, z, ext), false)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("no entry at (%d, %d)", x, z)
		}
		_, err = os.Stdout.Write(data)
		return err

	case "del":
		x, z, err := chunkArgs(args[1:], 2)
		if err != nil {
			return err
		}
		return section.Save(keys.NewMinecraftChunkLocation(x, z, ext), nil)

	case "keys":
		return section.ForAllKeys(func(k region.Key) error {
			loc := k.(keys.MinecraftChunkLocation)
			fmt.Printf("%d %d\n", loc.X(), loc.Z())
			return nil
		})

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func chunkArgs(args []string, want int) (x, z int, err error) {
	if len(args) < want {
		return 0, 0, fmt.Errorf("expected %d arguments", want)
	}
	if _, err := fmt.Sscanf(args[0], "%d", &x); err != nil {
		return 0, 0, fmt.Errorf("bad x coordinate %q", args[0])
	}
	if _, err := fmt.Sscanf(args[1], "%d", &z); err != nil {
		return 0, 0, fmt.Errorf("bad z coordinate %q", args[1])
	}
	return x, z, nil
}
