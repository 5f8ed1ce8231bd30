// Seed loads a set of demo users into Postgres for local development.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mesbahamin/timebook/internal/attendance"
	"github.com/mesbahamin/timebook/internal/config"
	"github.com/mesbahamin/timebook/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	for _, u := range demoUsers() {
		if err := repo.UpsertUser(ctx, u); err != nil {
			log.Fatal().Err(err).Str("user_id", u.UserID).Msg("seed failed")
		}
		log.Info().Str("user_id", u.UserID).Str("name", u.FirstName+" "+u.LastName).Msg("seeded")
	}
}

func demoUsers() []attendance.User {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	}
	left := date(2016, time.March, 24)

	return []attendance.User{
		{
			UserID:        "888000000",
			FirstName:     "Frodo",
			LastName:      "Baggins",
			PersonalEmail: "baggins.frodo@gmail.com",
			Major:         "Medicine",
			DateJoined:    date(2014, time.December, 11),
			IsStudent:     true,
			IsTutor:       true,
		},
		{
			UserID:        "888111111",
			FirstName:     "Sam",
			LastName:      "Gamgee",
			PersonalEmail: "gamgee.samwise@gmail.com",
			Major:         "Agriculture",
			DateJoined:    date(2015, time.February, 16),
			EducationPlan: true,
			IsStudent:     true,
		},
		{
			UserID:        "888222222",
			FirstName:     "Merry",
			LastName:      "Brandybuck",
			PersonalEmail: "brandybuck.merriadoc@gmail.com",
			Major:         "Physics",
			DateJoined:    date(2015, time.April, 12),
			DateLeft:      &left,
			EducationPlan: true,
			IsTutor:       true,
		},
		{
			UserID:        "888333333",
			FirstName:     "Pippin",
			LastName:      "Took",
			PersonalEmail: "took.peregrin@gmail.com",
			Major:         "Botany",
			DateJoined:    date(2015, time.February, 16),
			IsStudent:     true,
		},
		{
			UserID:        "888444444",
			FirstName:     "Gandalf",
			LastName:      "the Grey",
			PersonalEmail: "mithrandir@gmail.com",
			Major:         "Computer Science",
			DateJoined:    date(2010, time.October, 10),
			IsTutor:       true,
		},
	}
}
