package structs

/*
u64 timestamp;
u64 ksym;
u64 regs[5];
u64 head;
u32 nregs;
u32 pad;
*/

// ProbeSample mirrors struct probe_sample in kernel/tracking.cc. One sample
// is submitted per probe fire; all correlation happens on this side.
type ProbeSample struct {
	Timestamp uint64
	Ksym      uint64
	Regs      [5]uint64
	Head      uint64
	NumRegs   uint32
	Padding   [4]byte
}

// ProbeConfig mirrors struct probe_config in kernel/tracking.cc, keyed in
// the config_map by the probed symbol address.
type ProbeConfig struct {
	SkbArg    int8
	ReasonArg int8
	Padding   [6]byte
}

/*
u64 timestamp;
u64 ip;
u32 pid;
u32 tid;
*/

// UserSample mirrors struct user_sample in kernel/tracking.cc, submitted
// once per uprobe fire in a target process.
type UserSample struct {
	Timestamp uint64
	Ip        uint64
	Pid       uint32
	Tid       uint32
}
