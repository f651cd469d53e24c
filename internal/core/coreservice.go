package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"github.com/jo-hoe/imagecube/internal/backend/database"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
)

// ChatClient produces text completions
type ChatClient interface {
	Chat(ctx context.Context, req providers.ChatRequest) (string, error)
}

// BackgroundRemover returns a PNG cutout of the main subject
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error)
}

// Dependencies are the collaborators of CoreService
type Dependencies struct {
	Gallery           database.GalleryStore
	Chat              ChatClient
	ImageGenerators   map[string]providers.ImageGenerator
	BackgroundRemover BackgroundRemover
	Registry          *commandstructure.CommandRegistry
}

type CoreService struct {
	config            *ServiceConfig
	gallery           database.GalleryStore
	chat              ChatClient
	imageGenerators   map[string]providers.ImageGenerator
	backgroundRemover BackgroundRemover
	registry          *commandstructure.CommandRegistry
	galleryPipeline   *commandstructure.CommandInvoker
}

// NewCoreService wires the gallery store and provider clients from config
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	gallery, err := getGalleryStore(ctx, config)
	if err != nil {
		return nil, err
	}

	deepSeek := providers.NewDeepSeekClient(config.Providers.DeepSeek)
	deepSeek.SetRetryDelay(config.Providers.RetryDelay)

	service, err := NewCoreServiceWith(config, Dependencies{
		Gallery: gallery,
		Chat:    deepSeek,
		ImageGenerators: map[string]providers.ImageGenerator{
			ImageProviderSiliconFlow: providers.NewSiliconFlowClient(config.Providers.SiliconFlow),
			ImageProviderZhipu:       providers.NewZhipuClient(config.Providers.Zhipu),
		},
		BackgroundRemover: providers.NewRemoveBgClient(config.Providers.RemoveBg),
	})
	if err != nil {
		_ = gallery.Close()
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWith builds the service around the given dependencies
func NewCoreServiceWith(config *ServiceConfig, deps Dependencies) (*CoreService, error) {
	registry := deps.Registry
	if registry == nil {
		registry = commandstructure.DefaultRegistry
	}

	pipeline, err := commandstructure.NewCommandInvokerFromConfigs(registry, config.Gallery.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to build gallery pipeline: %w", err)
	}

	return &CoreService{
		config:            config,
		gallery:           deps.Gallery,
		chat:              deps.Chat,
		imageGenerators:   deps.ImageGenerators,
		backgroundRemover: deps.BackgroundRemover,
		registry:          registry,
		galleryPipeline:   pipeline,
	}, nil
}

func getGalleryStore(ctx context.Context, config *ServiceConfig) (database.GalleryStore, error) {
	storeConfig := database.StoreConfig{
		Type:       config.Database.Type,
		Key:        config.Gallery.Key,
		MaxEntries: config.Gallery.MaxEntries,
	}
	if config.Database.Type == "redis" {
		storeConfig.RedisURL = config.Database.ConnectionString
	} else {
		storeConfig.SQLitePath = config.Database.ConnectionString
	}

	store, err := database.NewGalleryStore(ctx, storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gallery store: %w", err)
	}
	slog.Info("gallery store initialized successfully", "type", config.Database.Type)
	return store, nil
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

func (service *CoreService) Close() error {
	if service.gallery == nil {
		return nil
	}
	return service.gallery.Close()
}
