// Package bootstrap configures a debugger session for the OpenSBI to Linux
// boot sequence of a RISC-V machine.
//
// Initialize resolves the firmware image and the kernel symbol table under
// the work directory named by GDB_WORK_DIR, makes the firmware the primary
// executable of the session, loads the kernel as a supplementary symbol
// file and installs the boot breakpoints. The debugger itself is reached
// through the Session interface so that the same sequence can drive a live
// gdb, write a gdb script or be recorded in tests.
package bootstrap
