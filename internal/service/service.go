// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/revgeo/internal/config"
	"github.com/wneessen/revgeo/internal/device"
	"github.com/wneessen/revgeo/internal/geobus"
	"github.com/wneessen/revgeo/internal/geocode"
	"github.com/wneessen/revgeo/internal/job"
	"github.com/wneessen/revgeo/internal/logger"
	"github.com/wneessen/revgeo/internal/presenter"
	"github.com/wneessen/revgeo/internal/viewmodel"
)

const loadingInterval = time.Millisecond * 120

var (
	ErrLookupFailed    = errors.New("lookup finished with an error")
	ErrUnknownLocation = errors.New("unknown test location")
	ErrInvalidPoint    = errors.New("point must be given as <latitude>,<longitude>")
)

// Selection chooses the coordinate source of a one-shot run. Point wins over Location, Location wins
// over Device. An empty Selection uses the first test location.
type Selection struct {
	Location string
	Point    string
	Device   bool
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	presenter *presenter.Presenter
	viewmodel *viewmodel.ViewModel
	scheduler gocron.Scheduler
	cache     *geocode.CachedGeocoder
	closers   []io.Closer
}

// New wires the geocoder, the device locator, the view-model and the console presenter.
func New(ctx context.Context, conf *config.Config, log *logger.Logger, t *spreak.Localizer, in io.Reader,
	out io.Writer,
) (*Service, error) {
	pres, err := presenter.New(conf, t, in, out)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	service := &Service{
		config:    conf,
		logger:    log,
		localizer: t,
		presenter: pres,
	}

	coder, err := service.selectGeocodeProvider(t.Language())
	if err != nil {
		return nil, err
	}
	coder, err = service.wrapGeocodeCache(ctx, coder)
	if err != nil {
		return nil, err
	}

	locator := device.New(log, service.selectGeobusProviders(), device.Config{
		Permission: device.Permission(conf.Device.Permission),
		Prompter:   pres,
		Timeout:    conf.Device.Timeout,
		Settle:     conf.Device.Settle,
	})
	service.init(coder, locator)
	return service, nil
}

func (s *Service) init(coder geocode.Geocoder, locator viewmodel.Locator) {
	s.viewmodel = viewmodel.New(s.logger, coder, locator, s.presenter)
}

// RunOnce selects a location, looks it up and renders the result. It returns ErrLookupFailed when the
// final state carries an error.
func (s *Service) RunOnce(ctx context.Context, sel Selection) error {
	if err := s.startScheduler(ctx); err != nil {
		return err
	}
	defer s.shutdown()

	switch {
	case sel.Point != "":
		if err := s.selectPoint(sel.Point); err != nil {
			return err
		}
	case sel.Location != "":
		if err := s.selectLocation(sel.Location); err != nil {
			return err
		}
	case sel.Device:
		s.initializeFromDevice(ctx)
	default:
		if err := s.selectLocation("1"); err != nil {
			return err
		}
	}

	if state := s.viewmodel.State(); state.Error == nil {
		s.reverseGeocode(ctx)
	}
	state := s.viewmodel.State()
	if err := s.presenter.Show(state); err != nil {
		return fmt.Errorf("failed to render state: %w", err)
	}
	s.logger.Debug("lookup finished", slog.String("state", state.String()))
	if state.Error != nil {
		return ErrLookupFailed
	}
	return nil
}

// RunInteractive selects the first test location and runs the command loop until the input is
// exhausted, the user quits or ctx is done.
func (s *Service) RunInteractive(ctx context.Context) error {
	if err := s.startScheduler(ctx); err != nil {
		return err
	}
	defer s.shutdown()

	if len(s.config.Locations) > 0 {
		if err := s.selectLocation("1"); err != nil {
			return err
		}
	}
	s.presenter.SetInteractive(true)
	s.presenter.Printf("%s", s.presenter.RenderLocations(s.config.Locations, s.viewmodel.State()))
	s.printHelp()

	for {
		s.presenter.Printf("> ")
		line, err := s.presenter.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				s.presenter.Printf("\n")
				return nil
			}
			return fmt.Errorf("failed to read command: %w", err)
		}
		if quit := s.execute(ctx, line); quit {
			return nil
		}
	}
}

// execute runs a single console command and reports whether the loop should end.
func (s *Service) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	command := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch command {
	case "list", "ls":
		s.presenter.Printf("%s", s.presenter.RenderLocations(s.config.Locations, s.viewmodel.State()))
	case "select", "sel":
		if err := s.selectLocation(arg); err != nil {
			s.presenter.Printf("%s\n", err)
			return false
		}
		s.show()
	case "point":
		if err := s.selectPoint(arg); err != nil {
			s.presenter.Printf("%s\n", err)
			return false
		}
		s.show()
	case "device":
		s.initializeFromDevice(ctx)
		s.show()
	case "geocode", "lookup":
		if s.viewmodel.State().Location != nil && !s.viewmodel.CanReverseGeocode() {
			return false
		}
		s.reverseGeocode(ctx)
		s.show()
	case "show":
		s.show()
	case "help", "?":
		s.printHelp()
	case "quit", "exit", "q":
		return true
	default:
		s.presenter.Printf("unknown command %q, type help for a list of commands\n", command)
	}
	return false
}

func (s *Service) show() {
	if err := s.presenter.Show(s.viewmodel.State()); err != nil {
		s.logger.Error("failed to render state", logger.Err(err))
	}
}

func (s *Service) printHelp() {
	s.presenter.Printf("%s:\n", s.presenter.Localize("commands"))
	s.presenter.Printf("  list               list the test locations\n")
	s.presenter.Printf("  select <n|name>    select a test location\n")
	s.presenter.Printf("  point <lat,lon>    select a free coordinate\n")
	s.presenter.Printf("  device             use the current device location\n")
	s.presenter.Printf("  geocode            reverse geocode the selected location\n")
	s.presenter.Printf("  show               show the current state\n")
	s.presenter.Printf("  quit               exit\n")
}

// selectLocation selects a test location by its 1-based index or its name.
func (s *Service) selectLocation(arg string) error {
	if arg == "" {
		return ErrUnknownLocation
	}
	loc, ok := s.config.Location(arg)
	if !ok {
		idx, err := strconv.Atoi(arg)
		if err != nil || idx < 1 || idx > len(s.config.Locations) {
			return fmt.Errorf("%w: %s", ErrUnknownLocation, arg)
		}
		loc = s.config.Locations[idx-1]
	}
	return s.viewmodel.SelectLocation(geobus.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude}, loc.Name)
}

func (s *Service) selectPoint(arg string) error {
	coord, err := parsePoint(arg)
	if err != nil {
		return err
	}
	return s.viewmodel.SelectLocation(coord, viewmodel.LabelPoint)
}

func (s *Service) reverseGeocode(ctx context.Context) {
	s.withIndicator(ctx, s.presenter.Localize("loading"), func(state viewmodel.State) bool {
		return state.Loading
	}, s.viewmodel.ReverseGeocode)
}

func (s *Service) initializeFromDevice(ctx context.Context) {
	s.withIndicator(ctx, s.presenter.Localize("locating"), func(state viewmodel.State) bool {
		return state.Locating
	}, s.viewmodel.InitializeFromDevice)
}

// withIndicator runs op while a job draws the loading indicator for as long as busy reports true.
func (s *Service) withIndicator(ctx context.Context, label string, busy func(viewmodel.State) bool,
	op func(context.Context),
) {
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := job.New(loadingInterval, func(context.Context) {
		if busy(s.viewmodel.State()) {
			s.presenter.Loading(label)
		}
	})
	go func() {
		defer close(done)
		ticker.Start(tickCtx)
	}()

	op(ctx)
	cancel()
	<-done
	s.presenter.ClearLoading()
}

func (s *Service) startScheduler(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = scheduler

	if s.cache != nil && s.config.Cache.Backend == "memory" {
		if err := s.createScheduledJob(ctx, s.config.Cache.PurgeInterval, s.purgeCache,
			"geocode_cache_purge_job"); err != nil {
			return err
		}
	}
	s.scheduler.Start()
	return nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) purgeCache(ctx context.Context) {
	purged, err := s.cache.Purge(ctx)
	if err != nil {
		s.logger.Error("failed to purge geocode cache", logger.Err(err))
		return
	}
	if purged > 0 {
		s.logger.Debug("purged expired geocode cache entries", slog.Int("entries", purged))
	}
}

func (s *Service) shutdown() {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			s.logger.Error("failed to shut down scheduler", logger.Err(err))
		}
		s.scheduler = nil
	}
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			s.logger.Error("failed to close resource", logger.Err(err))
		}
	}
	s.closers = nil
}

func parsePoint(arg string) (geobus.Coordinate, error) {
	lat, lon, ok := strings.Cut(arg, ",")
	if !ok {
		return geobus.Coordinate{}, fmt.Errorf("%w: %q", ErrInvalidPoint, arg)
	}
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("%w: invalid latitude: %w", ErrInvalidPoint, err)
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("%w: invalid longitude: %w", ErrInvalidPoint, err)
	}
	coord := geobus.Coordinate{Lat: latitude, Lon: longitude}
	if err = coord.Validate(); err != nil {
		return geobus.Coordinate{}, err
	}
	return coord, nil
}
