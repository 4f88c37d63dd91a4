package terminal

import (
	"bufio"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/crossdev/gdbboot/pkg/rvdisasm"
)

func disasmPrint(insts []rvdisasm.Instruction, pc uint64, atpcKnown bool, out io.Writer) {
	bw := bufio.NewWriter(out)
	defer bw.Flush()
	tw := tabwriter.NewWriter(bw, 1, 8, 1, '\t', 0)
	defer tw.Flush()
	for _, inst := range insts {
		atpc := ""
		if atpcKnown && inst.PC == pc {
			atpc = "=>"
		}
		fmt.Fprintf(tw, "%s\t%#x\t%x\t%s\n", atpc, inst.PC, inst.Bytes, inst.Text)
	}
}
