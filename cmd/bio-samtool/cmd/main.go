package cmd

import (
	"fmt"
	"log"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Print a SAM or BAM file in SAM format",
		ArgsName: "path",
	}
	flags := viewFlags{}
	cmd.Flags.StringVar(&flags.index, "index", "", "Input BAM index filename. By default set to input bampath + .bai")
	cmd.Flags.BoolVar(&flags.headerOnly, "header", false, "Print only the header in SAM format")
	cmd.Flags.BoolVar(&flags.withHeader, "with-header", false, "Print header before body")
	cmd.Flags.StringVar(&flags.regions, "regions", "", `A comma-separated list of regions to show.
Each element can be one of the following forms:

- chr: all the records on the reference.

- chr:beg: records overlapping [beg, end of chr]. beg is 1-based.

- chr:beg-end: records overlapping [beg, end]. beg and end are 1-based and both
  ends are inclusive, as in samtools.

A region query requires a BAM file with an index.`)
	cmd.Flags.BoolVar(&flags.contained, "contained", false, "With -regions, show only the records fully contained in a region")
	cmd.Flags.StringVar(&flags.filter, "filter", "", filterHelp)
	cmd.Flags.StringVar(&flags.stringency, "stringency", "strict", "Validation stringency of SAM input: strict, lenient or silent")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("view takes one pathname argument, but got %v", argv)
		}
		return view(vcontext.Background(), env.Stdout, flags, argv[0])
	})
	return cmd
}

func newCmdFlagstat() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "flagstat",
		Short:    "Show stats of either a SAM or a BAM file. This command is a clone of 'samtools flagstat'.",
		ArgsName: "path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("flagstat takes one pathname argument, but got %v", argv)
		}
		return flagstat(vcontext.Background(), env.Stdout, argv[0])
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Create the BAI index of a coordinate-sorted BAM file",
		ArgsName: "path",
	}
	outFlag := cmd.Flags.String("o", "", "Output index filename. By default set to input path + .bai")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("index takes one pathname argument, but got %v", argv)
		}
		return buildIndex(vcontext.Background(), argv[0], *outFlag)
	})
	return cmd
}

func newCmdConvert() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "convert",
		Short:    "Convert between SAM and BAM",
		ArgsName: "srcpath dstpath",
	}
	opts := convertOpts{}
	cmd.Flags.StringVar(&opts.format, "format", "", `Output format, "sam" or "bam". By default it is guessed from the destination path, with bam as the fallback.`)
	cmd.Flags.BoolVar(&opts.index, "index", false, "Also write the BAI index of a BAM output to dstpath + .bai. The input must be coordinate sorted.")
	cmd.Flags.IntVar(&opts.level, "level", 0, "Gzip compression level. 0 picks the default level")
	cmd.Flags.BoolVar(&opts.compress, "compress", false, "BGZF compress a SAM output")
	cmd.Flags.StringVar(&opts.stringency, "stringency", "strict", "Validation stringency of SAM input: strict, lenient or silent")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("convert takes two pathname arguments, but got %v", argv)
		}
		return convert(vcontext.Background(), argv[0], argv[1], opts)
	})
	return cmd
}

func newCmdChecksum() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "checksum",
		Short:    "Compute an order-independent checksum of the records of a SAM or BAM file",
		ArgsName: "path",
	}
	opts := checksumOpts{}
	cmd.Flags.StringVar(&opts.baiPath, "index", "", "Input BAM index filename. By default, set to input BAM filename + .bai")
	cmd.Flags.StringVar(&opts.hash, "hash", "seahash", "Hash function, seahash, highway or farm")
	cmd.Flags.BoolVar(&opts.name, "name", false, "Checksum the name field")
	cmd.Flags.BoolVar(&opts.tempLen, "templen", false, "Checksum the templen field")
	cmd.Flags.BoolVar(&opts.seq, "seq", false, "Checksum the seq field")
	cmd.Flags.BoolVar(&opts.cigar, "cigar", false, "Checksum the cigar field")
	cmd.Flags.BoolVar(&opts.aux, "aux", false, "Checksum the aux field")
	cmd.Flags.BoolVar(&opts.mapQ, "mapq", false, "Checksum the mapq field")
	cmd.Flags.BoolVar(&opts.matePos, "matePos", false, "Checksum the mateRef and matePos fields")
	cmd.Flags.BoolVar(&opts.qual, "qual", false, "Checksum the qual fields")
	cmd.Flags.BoolVar(&opts.all, "all", false, "Checksum the all the fields")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("checksum takes a path, but found %v", argv)
		}
		return checksum(vcontext.Background(), env.Stdout, argv[0], opts)
	})
	return cmd
}

// Run is the entry point of bio-samtool.
func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-samtool",
			Short:    "Tools for working with SAM and BAM files",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdView(),
				newCmdConvert(),
				newCmdIndex(),
				newCmdFlagstat(),
				newCmdChecksum(),
			},
		})
}
