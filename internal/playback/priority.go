package playback

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// niceness matches what Pipewire and PulseAudio use by default.
const niceness = -11

// rrPriority is ignored by Linux for SCHED_RR threads but must still be a
// valid value in [1, 99].
const rrPriority = 50

// tryIncreaseThreadPriority mirrors playback.rs's
// try_increase_thread_priority: boost the calling OS thread's scheduling
// priority so it is less likely to miss a buffer-refill deadline. Both
// adjustments are best-effort; a missing CAP_SYS_NICE only gets logged,
// never treated as fatal, matching the original's EPERM-tolerant
// behavior.
//
// It first calls runtime.LockOSThread, pinning the calling goroutine to its
// OS thread, since Go goroutines otherwise migrate between OS threads and
// this would boost a thread that is not the one running the playback loop.
func tryIncreaseThreadPriority(log *slog.Logger) {
	runtime.LockOSThread()

	tid := unix.Gettid()

	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, niceness); err != nil {
		log.Warn("playback: failed to set thread niceness, consider granting CAP_SYS_NICE or setting LimitNICE in the systemd unit", "err", err)
	} else {
		log.Info("playback: set thread niceness", "nice", niceness)
	}

	param := &unix.SchedParam{Priority: int32(rrPriority)}
	if err := unix.SchedSetscheduler(tid, unix.SCHED_RR, param); err != nil {
		if err == unix.EPERM {
			log.Warn("playback: not allowed to switch to SCHED_RR, consider granting CAP_SYS_NICE")
		} else {
			log.Warn("playback: failed to switch to SCHED_RR", "err", err)
		}
	} else {
		log.Info("playback: thread is now SCHED_RR")
	}
}
