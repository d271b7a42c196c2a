package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/partygate/internal/model"
)

type StorageSuite struct {
	suite.Suite
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.storage = New()
	s.ctx = context.Background()
}

func (s *StorageSuite) TestSaveAndGetLobby() {
	lobby := &model.Lobby{
		Code:      "ABC123",
		State:     model.LobbyStateWaiting,
		Config:    model.DefaultLobbyConfig(),
		CreatedAt: time.Now(),
	}

	err := s.storage.SaveLobby(s.ctx, lobby)
	s.Require().NoError(err)

	retrieved, err := s.storage.GetLobby(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Equal(lobby.Code, retrieved.Code)
	s.Equal(lobby.Config, retrieved.Config)
}

func (s *StorageSuite) TestGetLobbyNotFound() {
	_, err := s.storage.GetLobby(s.ctx, "NONEXISTENT")
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *StorageSuite) TestLobbyIsCopied() {
	lobby := &model.Lobby{
		Code:    "ABC123",
		Members: []model.LobbyMember{{DisplayName: "alice", Role: model.RolePlayer}},
	}
	s.Require().NoError(s.storage.SaveLobby(s.ctx, lobby))

	lobby.Members[0].Connected = true
	lobby.Members = append(lobby.Members, model.LobbyMember{DisplayName: "bob"})

	retrieved, err := s.storage.GetLobby(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.Len(retrieved.Members, 1)
	s.False(retrieved.Members[0].Connected)

	retrieved.Members[0].Eliminated = true
	again, _ := s.storage.GetLobby(s.ctx, "ABC123")
	s.False(again.Members[0].Eliminated)
}

func (s *StorageSuite) TestLobbyExists() {
	_ = s.storage.SaveLobby(s.ctx, &model.Lobby{Code: "ABC123"})

	exists, err := s.storage.LobbyExists(s.ctx, "ABC123")
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.storage.LobbyExists(s.ctx, "NONEXISTENT")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *StorageSuite) TestDeleteLobby() {
	_ = s.storage.SaveLobby(s.ctx, &model.Lobby{Code: "ABC123"})

	err := s.storage.DeleteLobby(s.ctx, "ABC123")
	s.Require().NoError(err)

	_, err = s.storage.GetLobby(s.ctx, "ABC123")
	s.ErrorIs(err, model.ErrLobbyNotFound)
}

func (s *StorageSuite) TestListLobbies() {
	_ = s.storage.SaveLobby(s.ctx, &model.Lobby{Code: "ZZZ999"})
	_ = s.storage.SaveLobby(s.ctx, &model.Lobby{Code: "ABC123"})

	codes, err := s.storage.ListLobbies(s.ctx)
	s.Require().NoError(err)
	s.Equal([]model.LobbyCode{"ABC123", "ZZZ999"}, codes)
}
