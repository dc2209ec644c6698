package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Account is a row of the accounts table. Status mirrors the values the
// lobby server understands: 1 = normal, 2 = banned, 3 = disabled.
type Account struct {
	ID           uint32    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Status       int16     `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLoginAt  time.Time `json:"lastLoginAt"`
}

const (
	AccountStatusNormal   int16 = 1
	AccountStatusBanned   int16 = 2
	AccountStatusDisabled int16 = 3
)

// Session is a live login session kept in Redis until the client either
// proceeds to a lobby server or the TTL runs out.
type Session struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uint32    `json:"accountId"`
	Username   string    `json:"username"`
	ClientIP   string    `json:"clientIp"`
	CreatedAt  time.Time `json:"createdAt"`
	HandoffJWT string    `json:"-"`
}

// AuctionListing is a row of the auction_house table. A listing with a
// NULL sale date older than the expiry cutoff is swept by the expiry
// worker and its item mailed back to the seller.
type AuctionListing struct {
	ID         int64     `db:"id" json:"id"`
	ItemID     int32     `db:"item_id" json:"itemId"`
	Quantity   int32     `db:"quantity" json:"quantity"`
	SellerID   uint32    `db:"seller_id" json:"sellerId"`
	SellerName string    `db:"seller_name" json:"sellerName"`
	Price      int64     `db:"price" json:"price"`
	ListedAt   time.Time `db:"listed_at" json:"listedAt"`
}

// ItemReturn builds the delivery-box payload for a listing swept at
// expiredAt.
func (l AuctionListing) ItemReturn(expiredAt time.Time) ItemReturnPayload {
	return ItemReturnPayload{
		ListingID:  l.ID,
		ItemID:     l.ItemID,
		Quantity:   l.Quantity,
		SellerID:   l.SellerID,
		SellerName: l.SellerName,
		ListedAt:   l.ListedAt,
		ExpiredAt:  expiredAt,
	}
}

// ItemReturnPayload is published to the delivery-box queue for every
// listing removed by the expiry worker.
type ItemReturnPayload struct {
	ListingID  int64     `json:"listing_id"`
	ItemID     int32     `json:"item_id"`
	Quantity   int32     `json:"quantity"`
	SellerID   uint32    `json:"seller_id"`
	SellerName string    `json:"seller_name"`
	ListedAt   time.Time `json:"listed_at"`
	ExpiredAt  time.Time `json:"expired_at"`
}

// AccountBanPayload arrives on the account-ban queue; the consumer kicks
// the account's live sessions.
type AccountBanPayload struct {
	AccountID uint32 `json:"account_id"`
	Reason    string `json:"reason,omitempty"`
}

// Sentinel errors shared between repositories and services.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountAlreadyExists  = errors.New("account already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountBanned         = errors.New("account is banned")
	ErrAccountDisabled       = errors.New("account is disabled")
	ErrAccountCreationClosed = errors.New("account creation is disabled")
	ErrSessionNotFound       = errors.New("session not found")
)
