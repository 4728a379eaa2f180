package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"aura.town/store"
	"aura.town/voice"
)

func RunSetup() {
	log.Info("Starting Aura setup...")

	ctx := context.Background()
	if viper.GetString("database_url") == "" {
		log.Warn("No DATABASE_URL set, the profile will not persist between runs")
	}
	st, err := openStore(ctx, log.Default())
	if err != nil {
		log.Fatal("Failed to open store", "error", err)
	}
	defer st.Close(ctx)

	profile, err := st.Profile(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoProfile) {
			log.Fatal("Failed to load profile", "error", err)
		}
		profile = &store.Profile{AssistantName: "Aura"}
	}

	geminiAPIKey := viper.GetString("gemini_api_key")
	speechmaticsAPIKey := viper.GetString("speechmatics_api_key")
	preference := string(voice.PreferenceAuto)
	if pref, err := st.VoicePreference(ctx); err == nil {
		preference = string(pref)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What should the assistant call you?").
				Value(&profile.DisplayName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("What is the assistant's name?").
				Description("This is also the wake word.").
				Value(&profile.AssistantName),
			huh.NewInput().
				Title("Email (optional)").
				Value(&profile.Email),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Google Cloud (Gemini) API Key").
				Value(&geminiAPIKey),
			huh.NewInput().
				Title("Enter your Speechmatics API Key").
				Description("Optional. Enables wake-word listening.").
				Value(&speechmaticsAPIKey),
			huh.NewSelect[string]().
				Title("Assistant voice").
				Options(
					huh.NewOption("Pick automatically", string(voice.PreferenceAuto)),
					huh.NewOption("Deep voice", string(voice.PreferenceMale)),
					huh.NewOption("Bright voice", string(voice.PreferenceFemale)),
				).
				Value(&preference),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal("Error during setup", "error", err)
	}

	if profile.AssistantName == "" {
		profile.AssistantName = "Aura"
	}
	if profile.UserName == "" {
		profile.UserName = strings.ToLower(
			strings.Fields(profile.DisplayName)[0],
		)
	}

	if err := st.SaveProfile(ctx, profile); err != nil {
		log.Fatal("Error saving profile", "error", err)
	}

	pref, err := voice.ParsePreference(preference)
	if err != nil {
		log.Fatal("Error during setup", "error", err)
	}
	if err := st.SaveVoicePreference(ctx, pref); err != nil {
		log.Fatal("Error saving voice preference", "error", err)
	}

	viper.Set("gemini_api_key", geminiAPIKey)
	viper.Set("speechmatics_api_key", speechmaticsAPIKey)
	if err := viper.WriteConfigAs("config.yaml"); err != nil {
		log.Fatal("Error writing config file", "error", err)
	}

	log.Info("Setup completed successfully!")
}
