package wire

import "github.com/dkeye/meetrelay/internal/domain"

// Control message kinds.
const (
	TypeCreateMeeting  = "create_meeting"
	TypeJoinMeeting    = "join_meeting"
	TypeMeetingCreated = "meeting_created"
	TypeJoinSuccess    = "join_success"
	TypeError          = "error"
	TypePing           = "ping"
	TypePong           = "pong"

	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeHostChanged = "host_changed"

	TypeChat                  = "chat"
	TypeVideoState            = "video_state"
	TypeParticipantVideoState = "participant_video_state"
	TypeRaiseHand             = "raise_hand"
	TypeParticipantHandState  = "participant_hand_state"
	TypeHandQueue             = "hand_queue"
	TypeEmojiReaction         = "emoji_reaction"

	TypeMuteParticipant        = "mute_participant"
	TypeUnmuteParticipant      = "unmute_participant"
	TypeMutedByHost            = "muted_by_host"
	TypeUnmutedByHost          = "unmuted_by_host"
	TypeParticipantMuted       = "participant_muted"
	TypeParticipantUnmuted     = "participant_unmuted"
	TypeLockMic                = "lock_mic"
	TypeUnlockMic              = "unlock_mic"
	TypeMicLocked              = "mic_locked"
	TypeMicUnlocked            = "mic_unlocked"
	TypeParticipantMicLocked   = "participant_mic_locked"
	TypeParticipantMicUnlocked = "participant_mic_unlocked"
	TypeRequestVideo           = "request_video"
	TypeRequestAllVideo        = "request_all_video"
	TypeRequestUnmute          = "request_unmute"
	TypeRequestAllUnmute       = "request_all_unmute"

	TypeRequestScreenShare = "request_screen_share"
	TypeStopScreenShare    = "stop_screen_share"
	TypeScreenShareStarted = "screen_share_started"
	TypeScreenShareStopped = "screen_share_stopped"
	TypeScreenShareDenied  = "screen_share_denied"
	TypeScreenFrame        = "screen_frame"

	TypeFileOffer   = "file_offer"
	TypeFileRequest = "file_request"
	TypeFileChunk   = "file_chunk"
	TypeFileEnd     = "file_end"
)

// Message is the envelope of every control frame. Only Type is mandatory;
// each kind uses the subset of fields it needs. FrameData and Data carry
// base64 text produced by the sending peer and are relayed untouched.
type Message struct {
	Type  string `json:"type"`
	Codec string `json:"codec,omitempty"`

	Username     string               `json:"username,omitempty"`
	MeetingCode  domain.SessionCode   `json:"meeting_code,omitempty"`
	ClientID     domain.PeerID        `json:"client_id,omitempty"`
	IsHost       *bool                `json:"is_host,omitempty"`
	Participants []domain.Participant `json:"participants,omitempty"`

	Message string `json:"message,omitempty"`
	State   any    `json:"state,omitempty"`
	Emoji   string `json:"emoji,omitempty"`

	TargetClientID   domain.PeerID `json:"target_client_id,omitempty"`
	NewHostID        domain.PeerID `json:"new_host_id,omitempty"`
	PresenterID      domain.PeerID `json:"presenter_id,omitempty"`
	CurrentPresenter domain.PeerID `json:"current_presenter,omitempty"`
	FrameData        string        `json:"frame_data,omitempty"`

	FileID       string        `json:"file_id,omitempty"`
	Filename     string        `json:"filename,omitempty"`
	Filesize     int64         `json:"filesize,omitempty"`
	SenderID     domain.PeerID `json:"sender_id,omitempty"`
	DownloaderID domain.PeerID `json:"downloader_id,omitempty"`
	RecipientID  domain.PeerID `json:"recipient_id,omitempty"`
	Data         string        `json:"data,omitempty"`
}

// Bool returns a pointer for the optional flag fields.
func Bool(v bool) *bool { return &v }

// StateOn interprets State as a switch. Peers send booleans for hands and
// "started"/"stopped" for video.
func (m *Message) StateOn() bool {
	switch v := m.State.(type) {
	case bool:
		return v
	case string:
		switch v {
		case "started", "on", "true", "1":
			return true
		}
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// ErrorMessage builds the reply for a failed request.
func ErrorMessage(text string) *Message {
	return &Message{Type: TypeError, Message: text}
}
