// Package ioworker is the child I/O worker described in §6: when a spawned
// inferior's stdout/stderr are redirected, this worker polls both pipe
// ends and hands read bytes to a callback. Each pipe is closed on its own
// end-of-file, hangup or error; a hangup on one pipe does not close the
// other. The worker exits once both are closed, or when poll itself fails.
//
// Grounded on original_source/sysdeps/server/x86-ptrace.c's
// server_ptrace_io_thread_main, rendered with golang.org/x/sys/unix.Poll
// rather than the original's raw poll(2) loop in C.
package ioworker

import (
	"golang.org/x/sys/unix"
)

// Callback receives bytes read from one of the two pipes; isStderr
// distinguishes which.
type Callback func(isStderr bool, data []byte)

// Worker polls a pair of pipe read-ends until both are closed or poll
// itself fails.
type Worker struct {
	stdoutFd int
	stderrFd int
	onData   Callback
	done     chan struct{}
}

// New builds a worker over the two fds; it does not start polling until
// Run is called, so the caller can hand the Worker to a goroutine of its
// choosing (the inferior controller's per-inferior goroutine, per §5's
// single-controller-thread discipline for everything except IO).
func New(stdoutFd, stderrFd int, onData Callback) *Worker {
	return &Worker{stdoutFd: stdoutFd, stderrFd: stderrFd, onData: onData, done: make(chan struct{})}
}

const readBufSize = 4096

// Run polls both fds until each has been closed by its own end-of-file,
// hangup or error, then returns. A poll failure other than EINTR also
// returns, leaving any still-open fd open. Run blocks until then; the
// Worker has no method that ends it early.
func (w *Worker) Run() {
	defer close(w.done)

	fds := []unix.PollFd{
		{Fd: int32(w.stdoutFd), Events: unix.POLLIN},
		{Fd: int32(w.stderrFd), Events: unix.POLLIN},
	}
	open := [2]bool{true, true}
	buf := make([]byte, readBufSize)

	for open[0] || open[1] {
		n, err := unix.Poll(fds, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			break
		}
		if n == 0 {
			continue
		}

		for i := range fds {
			if !open[i] {
				continue
			}
			revents := fds[i].Revents
			if revents&unix.POLLIN != 0 {
				k, rerr := unix.Read(int(fds[i].Fd), buf)
				if k > 0 {
					w.onData(i == 1, append([]byte(nil), buf[:k]...))
				}
				if k == 0 || rerr != nil {
					w.closeFd(i, &fds, &open)
				}
			}
			if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				w.closeFd(i, &fds, &open)
			}
		}
	}
}

func (w *Worker) closeFd(i int, fds *[]unix.PollFd, open *[2]bool) {
	if !open[i] {
		return
	}
	unix.Close(int((*fds)[i].Fd))
	open[i] = false
	(*fds)[i].Fd = -1
}

// Wait blocks until Run has returned (both pipes closed).
func (w *Worker) Wait() {
	<-w.done
}
