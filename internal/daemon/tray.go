//go:build windows
// +build windows

package daemon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"fyne.io/systray"
	"go.uber.org/zap"
)

var (
	user32      = syscall.NewLazyDLL("user32.dll")
	messageBoxW = user32.NewProc("MessageBoxW")
)

const (
	MB_OK              = 0x00000000
	MB_ICONINFORMATION = 0x00000040
)

// TrayApp represents system tray application
type TrayApp struct {
	daemon *Daemon
	logger *zap.Logger
	quit   chan struct{}
}

// NewTrayApp creates a new system tray application
func NewTrayApp(daemon *Daemon, logger *zap.Logger) (*TrayApp, error) {
	return &TrayApp{
		daemon: daemon,
		logger: logger,
		quit:   make(chan struct{}),
	}, nil
}

// Run starts the system tray application (blocks until Quit)
func (t *TrayApp) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *TrayApp) onReady() {
	systray.SetIcon(calendarIcon())
	systray.SetTitle("AB")
	systray.SetTooltip("Attendance Holiday Reconciler")

	mReconcileNow := systray.AddMenuItem("Reconcile now", "Mark this month's holidays immediately")
	systray.AddSeparator()
	mStatus := systray.AddMenuItem("Status", "Show last run")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit the application")

	go t.daemon.runScheduledLogic()

	go func() {
		for {
			select {
			case <-mReconcileNow.ClickedCh:
				t.logger.Info("Reconcile now clicked from tray")
				go t.daemon.ReconcileNow()
			case <-mStatus.ClickedCh:
				t.logger.Info("Status clicked from tray")
				t.showStatus()
			case <-mQuit.ClickedCh:
				t.logger.Info("Quit clicked from tray")
				t.daemon.Stop()
				systray.Quit()
				return
			case <-t.quit:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *TrayApp) onExit() {
	t.logger.Info("System tray exited")
}

// Stop stops the system tray application
func (t *TrayApp) Stop() {
	select {
	case <-t.quit:
	default:
		close(t.quit)
	}
}

// ShowNotification shows a notification.
// fyne.io/systray has no balloon support, so it updates the tooltip and logs.
func (t *TrayApp) ShowNotification(title, message string) {
	systray.SetTooltip(title + ": " + message)
	t.logger.Info("Notification", zap.String("title", title), zap.String("message", message))
}

func (t *TrayApp) showStatus() {
	status := t.daemon.GetStatus()
	t.logger.Info("Current status", zap.Any("status", status))

	message := fmt.Sprintf("Next run: %v", status["next_run"])
	if last, ok := status["last_run"].(map[string]interface{}); ok {
		message = fmt.Sprintf(
			"Last run: %v (%v..%v)\nWritten: %v\nProcessed: %v\nErrors: %v\n\n%s",
			last["date"], last["from"], last["to"],
			last["written"], last["count"], last["errors"],
			message,
		)
	}

	showMessageBox("Attendance Reconciler Status", message)
}

func showMessageBox(title, message string) {
	titlePtr, _ := syscall.UTF16PtrFromString(title)
	messagePtr, _ := syscall.UTF16PtrFromString(message)
	messageBoxW.Call(
		0,
		uintptr(unsafe.Pointer(messagePtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		uintptr(MB_OK|MB_ICONINFORMATION),
	)
}

// calendarIcon renders a 16x16 ICO: a white page with a red header bar
func calendarIcon() []byte {
	const size = 16
	var buf bytes.Buffer

	pixels := size * size * 4
	mask := size * 4 // 1bpp rows padded to 32 bits
	bmpSize := 40 + pixels + mask

	// ICONDIR + ICONDIRENTRY
	binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 1})
	buf.Write([]byte{size, size, 0, 0})
	binary.Write(&buf, binary.LittleEndian, []uint16{1, 32})
	binary.Write(&buf, binary.LittleEndian, []uint32{uint32(bmpSize), 22})

	// BITMAPINFOHEADER, height doubled for the AND mask
	binary.Write(&buf, binary.LittleEndian, []uint32{40, size, size * 2})
	binary.Write(&buf, binary.LittleEndian, []uint16{1, 32})
	binary.Write(&buf, binary.LittleEndian, []uint32{0, uint32(pixels + mask), 0, 0, 0, 0})

	// Rows are stored bottom-up as BGRA
	for y := size - 1; y >= 0; y-- {
		for x := 0; x < size; x++ {
			switch {
			case x == 0 || x == size-1 || y == size-1:
				buf.Write([]byte{0x40, 0x40, 0x40, 0xff})
			case y < 5:
				buf.Write([]byte{0x30, 0x30, 0xd0, 0xff})
			default:
				buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
			}
		}
	}
	buf.Write(make([]byte, mask))

	return buf.Bytes()
}
