package channel

import "errors"

var (
	ErrChannelNotFound = errors.New("channel does not exist")
	ErrSelfSubscribe   = errors.New("cannot subscribe to your own channel")
)

// Profile is a channel page view: the owner's public fields plus the
// relationship aggregates computed for the requesting viewer.
type Profile struct {
	ID                        string `json:"id"`
	UserName                  string `json:"userName"`
	Email                     string `json:"email"`
	FullName                  string `json:"fullName"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage,omitempty"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}
