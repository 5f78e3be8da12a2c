package model

// RemoteStatusKind 远端任务状态类别
type RemoteStatusKind int

const (
	RemoteUnknown RemoteStatusKind = iota
	RemoteSubmitted
	RemotePending
	RemoteSuccess
	RemoteFail
)

// RemoteStatus 远端查询返回的状态，Raw 保留原始取值
type RemoteStatus struct {
	Kind RemoteStatusKind
	Raw  string
}

// ParseRemoteStatus 将远端状态字符串归类
func ParseRemoteStatus(raw string) RemoteStatus {
	kind := RemoteUnknown
	switch raw {
	case "Submitted":
		kind = RemoteSubmitted
	case "Pending", "Queueing", "Preparing", "Processing":
		kind = RemotePending
	case "Success":
		kind = RemoteSuccess
	case "Fail":
		kind = RemoteFail
	}
	return RemoteStatus{Kind: kind, Raw: raw}
}

func (s RemoteStatus) String() string {
	if s.Raw == "" {
		return "Unknown"
	}
	return s.Raw
}
