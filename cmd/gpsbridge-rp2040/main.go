//go:build tinygo && rp2040

// Firmware for an RP2040 board: GPS NMEA on UART0, fix record served as an
// I2C target on I2C0.
package main

import (
	"machine"
	"time"

	"gpsbridge/internal/bridge"
	"gpsbridge/internal/bus"
	"gpsbridge/internal/fix"
)

const (
	gpsBaud = 9600
	busAddr = 0x1B
)

// uartRx reports only OK and empty; the machine package does not expose the
// receive error flags. ReadByte fails only when the ring buffer is empty.
type uartRx struct {
	u *machine.UART
}

func (r uartRx) ReceiveByte() (byte, bridge.RxStatus) {
	if r.u.Buffered() == 0 {
		return 0, bridge.RxEmpty
	}
	b, err := r.u.ReadByte()
	if err != nil {
		return 0, bridge.RxEmpty
	}
	return b, bridge.RxOK
}

func (r uartRx) ResetReceiver() {}

func serialLoop(u *machine.UART, p *bridge.Pipeline) {
	rx := uartRx{u: u}
	for {
		for u.Buffered() > 0 {
			p.OnSerial(rx)
		}
		time.Sleep(time.Millisecond)
	}
}

func main() {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: gpsBaud,
		TX:       machine.UART0_TX_PIN, // rate commands out
		RX:       machine.UART0_RX_PIN, // NMEA in
	})
	println("UART configured for GPS input.")

	p := bridge.New(bridge.Config{Layout: fix.LayoutExtended})
	target := bus.NewTarget(p.OnBus)
	size := p.Store().Size()

	i2c := machine.I2C0
	err := i2c.Configure(machine.I2CConfig{
		Mode: machine.I2CModeTarget,
		SDA:  machine.I2C0_SDA_PIN,
		SCL:  machine.I2C0_SCL_PIN,
	})
	if err != nil {
		for {
			println("could not configure I2C target:", err.Error())
			time.Sleep(time.Second)
		}
	}
	if err := i2c.Listen(busAddr); err != nil {
		for {
			println("could not listen on I2C:", err.Error())
			time.Sleep(time.Second)
		}
	}
	println("I2C target listening.")

	go serialLoop(uart, p)

	buf := make([]byte, 16)
	for {
		evt, n, err := i2c.WaitForEvent(buf)
		if err != nil {
			println("i2c event:", err.Error())
			continue
		}
		switch evt {
		case machine.I2CReceive:
			target.Receive(buf[:n])
		case machine.I2CRequest:
			if err := i2c.Reply(target.Request(size)); err != nil {
				println("i2c reply:", err.Error())
			}
		case machine.I2CFinish:
			target.Finish()
		}
	}
}
