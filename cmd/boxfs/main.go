package main

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/Joyfolk/boxfs/filesystem/boxfs"
	boxsync "github.com/Joyfolk/boxfs/sync"
	"github.com/Joyfolk/boxfs/util"
)

const usage = `boxfs - single-container file system CLI

Usage:
  boxfs create <container> [totalBlocks [blockSize]]   Create a new container
  boxfs ls <container> [<path>]                        List files (optionally in a specific path)
  boxfs cat <container> <file>                         Print a file's contents
  boxfs dump <container> <file>                        Hex-dump a file's contents
  boxfs info <container>                               Show container geometry and usage
  boxfs import <container> <hostdir>                   Copy a host directory tree into the container
  boxfs help                                           Show this help message

Examples:
  boxfs create data.box 2048 4096       Create data.box with 2048 blocks of 4096 bytes
  boxfs ls data.box docs                List all files in the docs directory
  boxfs cat data.box docs/readme.txt    Print readme.txt from data.box
  boxfs import data.box ./site          Import the ./site tree into data.box
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "create":
		if len(os.Args) < 3 {
			err = fmt.Errorf("missing container path")
			break
		}
		err = createContainer(os.Args[2], os.Args[3:])

	case "ls":
		if len(os.Args) < 3 {
			err = fmt.Errorf("missing container path")
			break
		}
		dir := "/"
		if len(os.Args) > 3 {
			dir = os.Args[3]
		}
		err = listFiles(os.Args[2], dir)

	case "cat":
		if len(os.Args) < 4 {
			err = fmt.Errorf("missing container path or target file")
			break
		}
		err = catFile(os.Args[2], os.Args[3], false)

	case "dump":
		if len(os.Args) < 4 {
			err = fmt.Errorf("missing container path or target file")
			break
		}
		err = catFile(os.Args[2], os.Args[3], true)

	case "info":
		if len(os.Args) < 3 {
			err = fmt.Errorf("missing container path")
			break
		}
		err = showInfo(os.Args[2])

	case "import":
		if len(os.Args) < 4 {
			err = fmt.Errorf("missing container path or source directory")
			break
		}
		err = importTree(os.Args[2], os.Args[3])

	case "help":
		fmt.Print(usage)

	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func createContainer(containerPath string, args []string) error {
	opts := boxfs.OpenOptions{}
	if len(args) > 0 {
		total, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid totalBlocks %q: %w", args[0], err)
		}
		opts.TotalBlocks = total
	}
	if len(args) > 1 {
		bs, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid blockSize %q: %w", args[1], err)
		}
		opts.BlockSize = uint32(bs)
	}
	fs, err := boxfs.Create(containerPath, opts)
	if err != nil {
		return err
	}
	defer func() { _ = fs.Close() }()

	fmt.Printf("created %s: %d blocks of %d bytes\n", containerPath, fs.TotalBlocks(), fs.BlockSize())
	return fs.Close()
}

func listFiles(containerPath, dir string) error {
	fs, err := boxfs.Open(containerPath, boxfs.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = fs.Close() }()

	entries, err := fs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, info := range entries {
		typeChar := "-"
		size := fmt.Sprintf("%8d", info.Size())
		if info.IsDir() {
			typeChar = "d"
			size = "       -"
		}
		timeStr := info.ModTime().Format("Jan 02 15:04")
		fmt.Printf("%s %s %s %s\n", typeChar, size, timeStr, path.Join(dir, info.Name()))
	}
	return nil
}

func catFile(containerPath, filePath string, hexDump bool) error {
	fs, err := boxfs.Open(containerPath, boxfs.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = fs.Close() }()

	data, err := fs.ReadFile(filePath)
	if err != nil {
		return err
	}
	if hexDump {
		fmt.Print(util.DumpByteSlice(data, 16, true, true, false, nil))
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

func showInfo(containerPath string) error {
	fs, err := boxfs.Open(containerPath, boxfs.OpenOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = fs.Close() }()

	total := fs.TotalBlocks()
	free := fs.FreeBlocks()
	bs := uint64(fs.BlockSize())
	fmt.Printf("container:    %s\n", containerPath)
	fmt.Printf("block size:   %d bytes\n", bs)
	fmt.Printf("total blocks: %d (%d bytes)\n", total, total*bs)
	fmt.Printf("free blocks:  %d (%d bytes)\n", free, free*bs)
	fmt.Printf("used blocks:  %d\n", total-free)
	return nil
}

func importTree(containerPath, hostDir string) error {
	info, err := os.Stat(hostDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", hostDir)
	}

	fs, err := boxfs.Open(containerPath, boxfs.OpenOptions{Create: true})
	if err != nil {
		return err
	}
	defer func() { _ = fs.Close() }()

	if err := boxsync.CopyFileSystem(os.DirFS(hostDir), fs); err != nil {
		return err
	}
	return fs.Close()
}
